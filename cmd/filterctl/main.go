// filterctl sends shader commands to a running wf-filters daemon.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Faultbox/wf-filters/internal/control"
	"github.com/Faultbox/wf-filters/internal/ipc"
)

type command struct {
	usage string
	run   func(c *ipc.Client, args []string, out io.Writer) error
	// nargs is the exact number of positional arguments, -1 for one or two.
	nargs int
}

var commands = map[string]command{
	"set-view-shader":   {"<view-id> <shader.glsl>", setViewShader, 2},
	"unset-view-shader": {"<view-id>", unsetViewShader, 1},
	"view-has-shader":   {"<view-id>", viewHasShader, 1},
	"set-fs-shader":     {"<output> <shader.glsl>", setFSShader, 2},
	"unset-fs-shader":   {"<output>", unsetFSShader, 1},
	"fs-has-shader":     {"<output>", fsHasShader, 1},
	"toggle-fs-shader":  {"<output> <shader.glsl>", toggleFSShader, 2},
	"list-views":        {"", listViews, 0},
	"list-outputs":      {"", listOutputs, 0},
	"screenshot":        {"<output> [file.png]", screenshot, -1},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "help", "-h", "--help":
		printUsage()
		return
	}

	if err := runCommand(name, os.Args[2:], os.Stdout); err != nil {
		msg, code := describe(err)
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(code)
	}
}

// Exit codes.
const (
	exitRejected    = 1
	exitUsage       = 2
	exitUnreachable = 3
)

var errUnreachable = errors.New("cannot reach daemon")

// describe returns the message and exit code for a failed command. Error
// replies from the daemon are told apart from transport failures.
func describe(err error) (string, int) {
	switch {
	case ipc.IsRemote(err):
		return fmt.Sprintf("Error: daemon rejected %v", err), exitRejected
	case errors.Is(err, errUnreachable):
		return fmt.Sprintf("Error: %v (is filtersd running?)", err), exitUnreachable
	default:
		return fmt.Sprintf("Error: %v", err), exitUsage
	}
}

func printUsage() {
	fmt.Println(`filterctl - control shader effects of a running wf-filters daemon

Usage:
  filterctl <command> [--socket path] [--timeout d] [arguments]

Commands:
  set-view-shader <view-id> <shader.glsl>   Fade a shader in on a view
  unset-view-shader <view-id>               Fade a view's shader out
  view-has-shader <view-id>                 Print whether a view has a shader
  set-fs-shader <output> <shader.glsl>      Apply a shader to a whole output
  unset-fs-shader <output>                  Fade an output's shader out
  fs-has-shader <output>                    Print whether an output has a shader
  toggle-fs-shader <output> <shader.glsl>   Set or unset an output's shader
  list-views                                List views and their shaders
  list-outputs                              List outputs and their shaders
  screenshot <output> [file.png]            Save an output's last frame

The socket defaults to $` + ipc.SocketEnv + ` or $XDG_RUNTIME_DIR/wf-filters.sock.

Examples:
  filterctl list-views
  filterctl set-view-shader 2 shaders/invert.glsl
  filterctl toggle-fs-shader SDL-1 shaders/grayscale.glsl`)
}

// runCommand parses the command's flags, connects and runs it.
func runCommand(name string, args []string, out io.Writer) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (see filterctl help)", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	socket := fs.String("socket", ipc.DefaultSocketPath(), "Daemon control socket")
	timeout := fs.Duration("timeout", 5*time.Second, "Reply timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	switch {
	case cmd.nargs >= 0 && len(rest) != cmd.nargs,
		cmd.nargs < 0 && (len(rest) < 1 || len(rest) > 2):
		return fmt.Errorf("usage: filterctl %s %s", name, cmd.usage)
	}

	c, err := ipc.Dial(*socket)
	if err != nil {
		return fmt.Errorf("%w: %w", errUnreachable, err)
	}
	defer c.Close()
	c.SetTimeout(*timeout)

	err = cmd.run(c, rest, out)
	if err != nil && !ipc.IsRemote(err) && !c.IsConnected() {
		return fmt.Errorf("%w: %w", errUnreachable, err)
	}
	return err
}

func parseViewID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid view id %q", s)
	}
	return id, nil
}

// shaderPath resolves path against the working directory, since the daemon
// opens it from its own.
func shaderPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func setViewShader(c *ipc.Client, args []string, out io.Writer) error {
	id, err := parseViewID(args[0])
	if err != nil {
		return err
	}
	path, err := shaderPath(args[1])
	if err != nil {
		return err
	}
	_, err = c.Call(control.MethodSetViewShader, map[string]any{
		control.FieldViewID:     id,
		control.FieldShaderPath: path,
	})
	return err
}

func unsetViewShader(c *ipc.Client, args []string, out io.Writer) error {
	id, err := parseViewID(args[0])
	if err != nil {
		return err
	}
	_, err = c.Call(control.MethodUnsetViewShader, map[string]any{control.FieldViewID: id})
	return err
}

func viewHasShader(c *ipc.Client, args []string, out io.Writer) error {
	id, err := parseViewID(args[0])
	if err != nil {
		return err
	}
	resp, err := c.Call(control.MethodViewHasShader, map[string]any{control.FieldViewID: id})
	if err != nil {
		return err
	}
	return printHasShader(resp, out)
}

func setFSShader(c *ipc.Client, args []string, out io.Writer) error {
	path, err := shaderPath(args[1])
	if err != nil {
		return err
	}
	_, err = c.Call(control.MethodSetFSShader, map[string]any{
		control.FieldOutputName: args[0],
		control.FieldShaderPath: path,
	})
	return err
}

func unsetFSShader(c *ipc.Client, args []string, out io.Writer) error {
	_, err := c.Call(control.MethodUnsetFSShader, map[string]any{control.FieldOutputName: args[0]})
	return err
}

func fsHasShader(c *ipc.Client, args []string, out io.Writer) error {
	resp, err := c.Call(control.MethodFSHasShader, map[string]any{control.FieldOutputName: args[0]})
	if err != nil {
		return err
	}
	return printHasShader(resp, out)
}

func toggleFSShader(c *ipc.Client, args []string, out io.Writer) error {
	resp, err := c.Call(control.MethodFSHasShader, map[string]any{control.FieldOutputName: args[0]})
	if err != nil {
		return err
	}
	has, ok := resp.Bool(control.FieldHasShader)
	if !ok {
		return errors.New("malformed fs-has-shader reply")
	}
	if has {
		if err := unsetFSShader(c, args[:1], out); err != nil {
			return err
		}
		fmt.Fprintln(out, "off")
		return nil
	}
	if err := setFSShader(c, args, out); err != nil {
		return err
	}
	fmt.Fprintln(out, "on")
	return nil
}

func printHasShader(resp ipc.Response, out io.Writer) error {
	has, ok := resp.Bool(control.FieldHasShader)
	if !ok {
		return errors.New("reply has no has-shader field")
	}
	fmt.Fprintln(out, has)
	return nil
}

// decodeField re-decodes a reply field into a typed value.
func decodeField(resp ipc.Response, key string, v any) error {
	raw, err := json.Marshal(resp[key])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func listViews(c *ipc.Client, _ []string, out io.Writer) error {
	resp, err := c.Call(control.MethodListViews, nil)
	if err != nil {
		return err
	}
	var views []control.ViewInfo
	if err := decodeField(resp, control.FieldViews, &views); err != nil {
		return fmt.Errorf("decoding views: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tOUTPUT\tMAPPED\tSHADER")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", v.ID, v.Title, v.Output, v.Mapped, orDash(v.Shader))
	}
	return w.Flush()
}

func listOutputs(c *ipc.Client, _ []string, out io.Writer) error {
	resp, err := c.Call(control.MethodListOutputs, nil)
	if err != nil {
		return err
	}
	var outputs []control.OutputInfo
	if err := decodeField(resp, control.FieldOutputs, &outputs); err != nil {
		return fmt.Errorf("decoding outputs: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tSHADER")
	for _, o := range outputs {
		fmt.Fprintf(w, "%s\t%dx%d\t%s\n", o.Name, o.Width, o.Height, orDash(o.Shader))
	}
	return w.Flush()
}

func screenshot(c *ipc.Client, args []string, out io.Writer) error {
	data := map[string]any{control.FieldOutputName: args[0]}
	if len(args) > 1 {
		path, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		data[control.FieldPath] = path
	}
	resp, err := c.Call(control.MethodScreenshot, data)
	if err != nil {
		return err
	}
	path, _ := resp[control.FieldPath].(string)
	fmt.Fprintln(out, path)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
