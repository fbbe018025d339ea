package xsi

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Write serializes the scene graph as textual XSI. The output is
// deterministic: the same graph always produces the same bytes, with
// frames in insertion order, animations and envelopes grouped into
// trailing top-level blocks and materials deduplicated by first use.
//
// Lights and cameras are not written; the in-game model pipeline never
// consumes them.
func Write(x *XSI, out io.Writer) error {
	w := &writer{w: bufio.NewWriter(out)}

	w.line(0, "xsi 0101txt 0032")
	w.line(0, "")

	w.line(0, "SI_CoordinateSystem coord {")
	for _, v := range []string{"1;", "0;", "1;", "0;", "2;", "5;"} {
		w.line(1, v)
	}
	w.line(0, "}")

	for _, frame := range x.Frames {
		w.line(0, "")
		w.writeFrame(0, frame)
	}

	if x.IsAnimated() {
		w.line(0, "")
		w.line(0, "AnimationSet {")
		for frame := range x.AnimatedFrames() {
			w.writeAnimation(1, frame)
		}
		w.line(0, "}")
	}

	if x.IsSkinned() {
		w.line(0, "")
		w.line(0, "SI_EnvelopeList {")
		w.linef(1, "%d;", x.EnvelopeCount())
		for frame := range x.SkinnedFrames() {
			for _, env := range frame.Envelopes {
				w.writeEnvelope(1, frame, env)
			}
		}
		w.line(0, "}")
	}

	return w.flush()
}

// WriteFile serializes the scene graph to a file.
func WriteFile(x *XSI, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating XSI file: %w", err)
	}
	if err := Write(x, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// safeName maps a frame or mesh name onto the character set the format
// tolerates in identifiers. Anything outside [A-Za-z0-9_-] becomes an
// underscore; an empty name becomes UnnamedFrame.
func safeName(name string) string {
	if name == "" {
		return UnnamedFrame
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z',
			c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// writer emits tab-indented lines with a sticky error, so the
// serialization code never has to check errors mid-block.
type writer struct {
	w   *bufio.Writer
	err error
}

func (w *writer) line(t int, s string) {
	if w.err != nil {
		return
	}
	for i := 0; i < t; i++ {
		if w.err = w.w.WriteByte('\t'); w.err != nil {
			return
		}
	}
	if _, w.err = w.w.WriteString(s); w.err != nil {
		return
	}
	w.err = w.w.WriteByte('\n')
}

func (w *writer) linef(t int, format string, args ...any) {
	w.line(t, fmt.Sprintf(format, args...))
}

func (w *writer) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// listTerm returns the separator closing element i of an n-element
// list: comma between elements, semicolon after the last.
func listTerm(i, n int) string {
	if i == n-1 {
		return ";"
	}
	return ","
}

// list writes a counted list: the element count, then the pre-formatted
// items each terminated by comma or, for the last, semicolon.
func (w *writer) list(t int, items []string) {
	w.linef(t, "%d;", len(items))
	for i, item := range items {
		w.line(t, item+listTerm(i, len(items)))
	}
}

func formatFaces(faces []Face, indexed bool) []string {
	items := make([]string, len(faces))
	for i, face := range faces {
		var b strings.Builder
		if indexed {
			fmt.Fprintf(&b, "%d;", i)
		}
		fmt.Fprintf(&b, "%d;", len(face))
		for j, idx := range face {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", idx)
		}
		b.WriteByte(';')
		items[i] = b.String()
	}
	return items
}

func (w *writer) writeFrame(t int, frame *Frame) {
	w.linef(t, "Frame frm-%s {", safeName(frame.Name))

	if frame.Transform != nil {
		w.writeMatrix(t+1, *frame.Transform, "FrameTransformMatrix")
	}
	if frame.Pose != nil {
		w.writeMatrix(t+1, *frame.Pose, "SI_FrameBasePoseMatrix")
	}
	if frame.Mesh != nil {
		name := frame.Mesh.Name
		if name == "" {
			name = frame.Name
		}
		w.writeMesh(t+1, frame.Mesh, name)
	}
	for _, sub := range frame.Frames {
		w.writeFrame(t+1, sub)
	}

	w.line(t, "}")
}

func (w *writer) writeMatrix(t int, m Matrix, blockName string) {
	w.line(t, blockName+" {")
	w.linef(t+1, "%f,%f,%f,%f,", m.Right[0], m.Right[1], m.Right[2], m.Right[3])
	w.linef(t+1, "%f,%f,%f,%f,", m.Up[0], m.Up[1], m.Up[2], m.Up[3])
	w.linef(t+1, "%f,%f,%f,%f,", m.Front[0], m.Front[1], m.Front[2], m.Front[3])
	w.linef(t+1, "%f,%f,%f,%f;;", m.Posit[0], m.Posit[1], m.Posit[2], m.Posit[3])
	w.line(t, "}")
}

func (w *writer) writeMesh(t int, mesh *Mesh, name string) {
	w.linef(t, "Mesh %s {", safeName(name))

	if len(mesh.Vertices) > 0 {
		items := make([]string, len(mesh.Vertices))
		for i, v := range mesh.Vertices {
			items[i] = fmt.Sprintf("%f;%f;%f;", v.X, v.Y, v.Z)
		}
		w.list(t+1, items)

		if len(mesh.Faces) > 0 {
			w.list(t+1, formatFaces(mesh.Faces, false))
		}

		if len(mesh.FaceMaterials) > 0 && len(mesh.Faces) > 0 {
			w.writeMaterialList(t+1, mesh)
		}

		if len(mesh.NormalVertices) > 0 {
			w.line(t+1, "SI_MeshNormals {")
			items := make([]string, len(mesh.NormalVertices))
			for i, v := range mesh.NormalVertices {
				items[i] = fmt.Sprintf("%f;%f;%f;", v.X, v.Y, v.Z)
			}
			w.list(t+2, items)
			if len(mesh.NormalFaces) > 0 {
				w.list(t+2, formatFaces(mesh.NormalFaces, true))
			}
			w.line(t+1, "}")
		}

		if len(mesh.UVVertices) > 0 {
			w.line(t+1, "SI_MeshTextureCoords {")
			items := make([]string, len(mesh.UVVertices))
			for i, v := range mesh.UVVertices {
				items[i] = fmt.Sprintf("%f;%f;", v.X, v.Y)
			}
			w.list(t+2, items)
			if len(mesh.UVFaces) > 0 {
				w.list(t+2, formatFaces(mesh.UVFaces, true))
			}
			w.line(t+1, "}")
		}

		if len(mesh.VertexColors) > 0 && len(mesh.VertexColorFaces) > 0 {
			w.line(t+1, "SI_MeshVertexColors {")
			w.writeVertexColors(t+2, mesh)
			w.list(t+2, formatFaces(mesh.VertexColorFaces, true))
			w.line(t+1, "}")
		}
	}

	w.line(t, "}")
}

// writeVertexColors emits the color vertices in face order, one run per
// face with the face's last color closed by a semicolon. The leading
// count is the size of the color table, not the number of lines; that
// asymmetry is what the game's loader expects.
func (w *writer) writeVertexColors(t int, mesh *Mesh) {
	w.linef(t, "%d;", len(mesh.VertexColors))
	for _, face := range mesh.VertexColorFaces {
		for i, idx := range face {
			c := mesh.VertexColors[idx]
			w.linef(t, "%f;%f;%f;%f;%s", c[0], c[1], c[2], c[3], listTerm(i, len(face)))
		}
	}
}

func (w *writer) writeMaterialList(t int, mesh *Mesh) {
	indices, materials := mesh.MaterialIndices()

	w.line(t, "MeshMaterialList {")
	w.linef(t+1, "%d;", len(materials))
	w.linef(t+1, "%d;", len(indices))
	for i, idx := range indices {
		w.linef(t+1, "%d%s", idx, listTerm(i, len(indices)))
	}
	for _, mat := range materials {
		w.writeMaterial(t+1, mat)
	}
	w.line(t, "}")
}

func (w *writer) writeMaterial(t int, mat Material) {
	w.line(t, "SI_Material {")
	w.linef(t+1, "%f;%f;%f;%f;;", mat.Diffuse[0], mat.Diffuse[1], mat.Diffuse[2], mat.Diffuse[3])
	w.linef(t+1, "%f;", mat.Hardness)
	w.linef(t+1, "%f;%f;%f;;", mat.Specular.X, mat.Specular.Y, mat.Specular.Z)
	w.linef(t+1, "%f;%f;%f;;", mat.Emissive.X, mat.Emissive.Y, mat.Emissive.Z)
	w.linef(t+1, "%d;", int(mat.Shading))
	w.linef(t+1, "%f;%f;%f;;", mat.Ambient.X, mat.Ambient.Y, mat.Ambient.Z)

	if mat.Texture != "" {
		w.line(t+1, "SI_Texture2D {")
		w.linef(t+2, "\"%s\";", mat.Texture)
		w.line(t+1, "}")
	}

	w.line(t, "}")
}

func (w *writer) writeAnimation(t int, frame *Frame) {
	name := safeName(frame.Name)
	w.linef(t, "Animation anim-%s {", name)
	w.linef(t+1, "{frm-%s}", name)

	for _, key := range frame.AnimationKeys {
		w.line(t+1, "SI_AnimationKey {")
		w.linef(t+2, "%d;", int(key.Type))
		w.writeKeys(t+2, key)
		w.line(t+1, "}")
	}

	w.line(t, "}")
}

func (w *writer) writeKeys(t int, key *AnimationKey) {
	items := make([]string, len(key.Keys))
	for i, k := range key.Keys {
		var b strings.Builder
		fmt.Fprintf(&b, "%d;%d;", k.Keyframe, len(k.Value))
		for j, v := range k.Value {
			if j > 0 {
				b.WriteByte(';')
			}
			fmt.Fprintf(&b, "%f", v)
		}
		b.WriteString(";;")
		items[i] = b.String()
	}
	w.list(t, items)
}

func (w *writer) writeEnvelope(t int, frame *Frame, env *Envelope) {
	w.line(t, "SI_Envelope {")
	w.linef(t+1, "\"frm-%s\";", safeName(frame.Name))
	w.linef(t+1, "\"frm-%s\";", safeName(env.Bone.Name))

	items := make([]string, len(env.Weights))
	for i, weight := range env.Weights {
		items[i] = fmt.Sprintf("%d;%f;", weight.VertexIndex, weight.Value)
	}
	w.list(t+1, items)

	w.line(t, "}")
}
