package shader

import (
	"regexp"
	"strings"
)

// Kind selects the fragment boilerplate for an effect.
type Kind int

const (
	// KindView effects also receive the content margins uniform.
	KindView Kind = iota
	// KindOutput effects sample the composited output.
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Attribute locations used by Vertex.
const (
	AttribPosition = 0
	AttribTexcoord = 1
)

// Uniform names shared by the boilerplate and the renderer.
const (
	UniformMVP      = "mvp"
	UniformProgress = "progress"
	UniformMargins  = "margins"
	UniformTexture  = "in_tex"
)

// Vertex is the fixed vertex stage every effect is linked against.
const Vertex = `#version 410 core

layout (location = 0) in vec2 position;
layout (location = 1) in vec2 texcoord;

out vec2 uvpos;

uniform mat4 mvp;

void main() {
   gl_Position = mvp * vec4(position.xy, 0.0, 1.0);
   uvpos = texcoord;
}
`

const fragmentHeader = `#version 410 core

precision mediump float;

in vec2 uvpos;
out vec4 out_color;

uniform sampler2D in_tex;
uniform float progress;
`

// margins: x = left, y = top, z = right, w = bottom, in buffer pixels.
const marginsDecl = "uniform vec4 margins;\n"

const builtins = `vec4 get_pixel(vec2 pos) {
    return texture(in_tex, pos);
}
`

var (
	versionLine  = regexp.MustCompile(`(?m)^[ \t]*#version[^\n]*\n?`)
	precisionRe  = regexp.MustCompile(`(?m)^[ \t]*precision\s+\w+\s+\w+\s*;[ \t]*\n?`)
	uvposDecl    = regexp.MustCompile(`(?m)^[ \t]*(varying|in)\s+(\w+\s+)?vec2\s+uvpos\s*;[ \t]*\n?`)
	reservedDecl = regexp.MustCompile(`(?m)^[ \t]*uniform\s+(\w+\s+)?\w+\s+(mvp|progress|margins|in_tex)\s*;[ \t]*\n?`)
	varyingKw    = regexp.MustCompile(`\bvarying\b`)
	texture2D    = regexp.MustCompile(`\btexture2D\s*\(`)
	fragColor    = regexp.MustCompile(`\bgl_FragColor\b`)
)

// Fragment wraps a user supplied fragment body with the boilerplate for kind.
// Bodies written against the legacy GLSL ES dialect (#version 100,
// @builtin@ placeholders, gl_FragColor, texture2D, varying) are translated.
func Fragment(body string, kind Kind) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = versionLine.ReplaceAllString(body, "")
	body = precisionRe.ReplaceAllString(body, "")
	body = uvposDecl.ReplaceAllString(body, "")
	body = reservedDecl.ReplaceAllString(body, "")
	body = strings.ReplaceAll(body, "@builtin_ext@", "")
	body = varyingKw.ReplaceAllString(body, "in")
	body = texture2D.ReplaceAllString(body, "texture(")
	body = fragColor.ReplaceAllString(body, "out_color")

	var sb strings.Builder
	sb.WriteString(fragmentHeader)
	if kind == KindView {
		sb.WriteString(marginsDecl)
	}
	sb.WriteString("\n")

	if strings.Contains(body, "@builtin@") {
		body = strings.Replace(body, "@builtin@", builtins, 1)
		body = strings.ReplaceAll(body, "@builtin@", "")
	} else {
		sb.WriteString(builtins)
	}
	sb.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}
