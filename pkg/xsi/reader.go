package xsi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/bzxsi/pkg/math"
)

// Options configures a parse. The zero value selects the default skip
// set, duplicate renaming and no diagnostics.
type Options struct {
	// Skip lists block-type patterns to skip wholesale without entering
	// their contents. nil selects DefaultSkip. Selective import (ignore
	// lights, ignore animations, ...) works by listing the matching
	// exported Pattern* values here.
	Skip []*regexp.Regexp

	// Duplicates selects how colliding frame names are handled.
	Duplicates DuplicatePolicy

	// Log receives recoverable diagnostics (unknown blocks, dangling
	// references, count mismatches). nil discards them.
	Log *zap.Logger

	// Name labels stream positions in diagnostics and errors. Defaults
	// to "xsi"; ParseFile sets it to the file path.
	Name string
}

// Parse reads a textual XSI stream into a scene graph.
//
// A malformed header signature or a structurally broken required value
// fails the whole parse. Local anomalies (unknown block types, dangling
// cross-references, count mismatches, bad animation key types) are
// reported to Options.Log, the offending block is skipped, and parsing
// continues. If the stream ends inside an unclosed block, Parse returns
// the graph built so far together with an error wrapping ErrTruncated;
// callers that want the historical lenient behavior can ignore that
// specific error.
func Parse(r io.Reader, opts *Options) (*XSI, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Name == "" {
		o.Name = "xsi"
	}
	if o.Skip == nil {
		o.Skip = DefaultSkip()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	x := NewXSI()
	x.Name = o.Name
	x.Duplicates = o.Duplicates

	p := &parser{
		lex:  newLexer(r, o.Name),
		xsi:  x,
		skip: o.Skip,
		log:  o.Log,
	}

	if err := p.run(); err != nil {
		return nil, err
	}
	if p.truncated {
		return x, p.lex.errf(ErrTruncated, "stream ended inside an unclosed block")
	}
	return x, nil
}

// ParseFile parses an XSI file from disk.
func ParseFile(path string, opts *Options) (*XSI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening XSI file: %w", err)
	}
	defer f.Close()

	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Name == "" {
		o.Name = path
	}
	return Parse(f, &o)
}

// parser drives a single forward pass over one stream. It owns its
// lexer and graph; nothing is shared between parser instances.
type parser struct {
	lex       *lexer
	xsi       *XSI
	skip      []*regexp.Regexp
	log       *zap.Logger
	truncated bool
}

// diag reports a recoverable anomaly with the current position.
func (p *parser) diag(msg string, fields ...zap.Field) {
	pos := []zap.Field{
		zap.String("file", p.lex.name),
		zap.Int("line", p.lex.line),
		zap.Int("col", p.lex.col),
	}
	p.log.Warn(msg, append(pos, fields...)...)
}

func (p *parser) skipMatch(blockType string) bool {
	for _, re := range p.skip {
		if re.MatchString(blockType) {
			return true
		}
	}
	return false
}

// word returns the next data word; end of stream here is fatal since a
// value was required.
func (p *parser) word() (string, error) {
	w, err := p.lex.readWord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", p.lex.errf(ErrTruncated, "unexpected end of file")
		}
		return "", err
	}
	return w, nil
}

func (p *parser) float() (float32, error) {
	w, err := p.word()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(w, 32)
	if err != nil {
		return 0, p.lex.errf(ErrExpectedNumber, "got %q", w)
	}
	return float32(v), nil
}

func (p *parser) floats(n int) ([]float32, error) {
	out := make([]float32, n)
	for i := range out {
		v, err := p.float()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *parser) int() (int, error) {
	w, err := p.word()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(w)
	if err != nil {
		return 0, p.lex.errf(ErrExpectedNumber, "got %q", w)
	}
	return v, nil
}

// count parses an integer tolerantly: count fields are sometimes
// written as "3.0", so it goes through float conversion.
func (p *parser) count() (int, error) {
	w, err := p.word()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, p.lex.errf(ErrExpectedNumber, "got %q", w)
	}
	return int(v), nil
}

// size parses a declared element count that feeds a slice allocation.
// A negative value here is a structural error, unlike the loop-bounding
// counts (animation keys, envelope weights) where a negative value just
// yields an empty list.
func (p *parser) size() (int, error) {
	v, err := p.count()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, p.lex.errf(ErrExpectedNumber, "negative count %d", v)
	}
	return v, nil
}

// cleanName strips the noise this format's naming conventions wrap
// around identifiers: a {...} brace-literal wrapper and the frm-/anim-
// block name prefixes. Empty names become UnnamedFrame.
func cleanName(name string) string {
	if len(name) >= 2 && name[0] == '{' && name[len(name)-1] == '}' {
		name = name[1 : len(name)-1]
	}

	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "frm-"):
		name = name[4:]
	case strings.HasPrefix(lower, "anim-"):
		name = name[5:]
	}

	if name == "" {
		return UnnamedFrame
	}
	return name
}

// cleanParam returns the cleaned first block parameter, which is how
// blocks carry their own name.
func cleanParam(params []string) string {
	if len(params) == 0 {
		return UnnamedFrame
	}
	return cleanName(params[0])
}

// skipBlock consumes the remainder of the current block, tracking brace
// depth so nested blocks are skipped too. Call it only after the
// block's opening brace has been consumed. Stream end during a skip
// marks the parse truncated but is not itself fatal.
func (p *parser) skipBlock() error {
	depth := 1
	for depth > 0 {
		w, err := p.lex.readWord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.truncated = true
				return nil
			}
			return err
		}
		switch w {
		case "{":
			depth++
		case "}":
			depth--
		}
	}
	return nil
}

// run parses the header line and then the top-level blocks.
func (p *parser) run() error {
	parts := make([]string, 3)
	for i := range parts {
		w, err := p.lex.readWord()
		if err != nil {
			return p.lex.errf(ErrInvalidHeader, "stream too short")
		}
		parts[i] = w
	}
	header := strings.Join(parts, " ")
	if !patternHeader.MatchString(header) {
		return p.lex.errf(ErrInvalidHeader, "%q", header)
	}

	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, io.EOF) || errors.Is(err, errEndOfBlock) {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternLight.MatchString(hdr.name):
			err = p.readLight(hdr.params)
		case PatternCamera.MatchString(hdr.name):
			err = p.readCamera(hdr.params)
		case PatternFrame.MatchString(hdr.name):
			err = p.readFrame(nil, hdr.params)
		case PatternAnimationSet.MatchString(hdr.name):
			err = p.readAnimationSet()
		case PatternEnvelopeList.MatchString(hdr.name):
			err = p.readEnvelopeList()
		default:
			p.diag("unknown block in XSI", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}
}

// readLight handles SI_Light. Only point lights (type 0) carry data the
// engine uses; other light types are skipped.
func (p *parser) readLight(params []string) error {
	name := cleanParam(params)

	lightType, err := p.count()
	if err != nil {
		return err
	}

	if lightType == 0 {
		rgb, err := p.floats(3)
		if err != nil {
			return err
		}
		pos, err := p.floats(3)
		if err != nil {
			return err
		}
		p.xsi.Lights = append(p.xsi.Lights, NewPointLight(
			name,
			math.Vec3{X: rgb[0], Y: rgb[1], Z: rgb[2]},
			math.Vec3{X: pos[0], Y: pos[1], Z: pos[2]},
		))
	}

	return p.skipBlock()
}

func (p *parser) readCamera(params []string) error {
	name := cleanParam(params)

	pos, err := p.floats(3)
	if err != nil {
		return err
	}
	lookAt, err := p.floats(3)
	if err != nil {
		return err
	}
	extra, err := p.floats(3) // roll, near plane, far plane
	if err != nil {
		return err
	}

	p.xsi.Cameras = append(p.xsi.Cameras, NewCamera(
		name,
		math.Vec3{X: pos[0], Y: pos[1], Z: pos[2]},
		math.Vec3{X: lookAt[0], Y: lookAt[1], Z: lookAt[2]},
		extra[0], extra[1], extra[2],
	))

	return p.skipBlock()
}

// readFrame builds one frame and recurses into its nested blocks.
// parent is nil for top-level frames. AnimationSet and EnvelopeList
// blocks appearing inside a frame (files with unclosed braces put them
// there) are position-independent and processed as if at top level.
func (p *parser) readFrame(parent *Frame, params []string) error {
	name := cleanParam(params)

	if p.xsi.Duplicates == RenameDuplicates && p.xsi.FindFrame(name) != nil {
		p.diag("duplicate frame renamed", zap.String("frame", name))
	}

	var frame *Frame
	var err error
	if parent != nil {
		frame, err = parent.AddFrame(name)
	} else {
		frame, err = p.xsi.AddFrame(name)
	}
	if err != nil {
		return &ParseError{Name: p.lex.name, Line: p.lex.line, Col: p.lex.col, Err: err}
	}

	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternTransformMatrix.MatchString(hdr.name):
			frame.Transform, err = p.readMatrix()
		case PatternPoseMatrix.MatchString(hdr.name):
			frame.Pose, err = p.readMatrix()
		case PatternMesh.MatchString(hdr.name):
			frame.Mesh, err = p.readMesh(hdr.params)
		case PatternFrame.MatchString(hdr.name):
			err = p.readFrame(frame, hdr.params)
		case PatternAnimationSet.MatchString(hdr.name):
			err = p.readAnimationSet()
		case PatternEnvelopeList.MatchString(hdr.name):
			err = p.readEnvelopeList()
		default:
			p.diag("unknown block in frame",
				zap.String("block", hdr.name), zap.String("frame", frame.Name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) readMatrix() (*Matrix, error) {
	rows := make([]math.Vec4, 4)
	for i := range rows {
		v, err := p.floats(4)
		if err != nil {
			return nil, err
		}
		rows[i] = math.Vec4{v[0], v[1], v[2], v[3]}
	}

	m := &Matrix{Right: rows[0], Up: rows[1], Front: rows[2], Posit: rows[3]}
	return m, p.skipBlock()
}

// parse3DData reads one vertex/face data block: a vertex count, that
// many vectors of the given arity, a face count, then variable-arity
// index lists. Position faces are written bare; the normal/UV/color
// layers prefix each face with its own index, which is consumed and
// discarded.
func (p *parser) parse3DData(arity int, indexed bool) ([][]float32, []Face, error) {
	vertexCount, err := p.size()
	if err != nil {
		return nil, nil, err
	}
	vertices := make([][]float32, 0, vertexCount)
	for i := 0; i < vertexCount; i++ {
		v, err := p.floats(arity)
		if err != nil {
			return nil, nil, err
		}
		vertices = append(vertices, v)
	}

	faceCount, err := p.size()
	if err != nil {
		return nil, nil, err
	}
	faces := make([]Face, 0, faceCount)
	for i := 0; i < faceCount; i++ {
		if indexed {
			if _, err := p.int(); err != nil {
				return nil, nil, err
			}
		}
		n, err := p.int()
		if err != nil {
			return nil, nil, err
		}
		if n < 0 {
			return nil, nil, p.lex.errf(ErrExpectedNumber, "negative face arity %d", n)
		}
		face := make(Face, n)
		for j := range face {
			if face[j], err = p.int(); err != nil {
				return nil, nil, err
			}
		}
		faces = append(faces, face)
	}

	return vertices, faces, nil
}

func toVec3s(vectors [][]float32) []math.Vec3 {
	out := make([]math.Vec3, len(vectors))
	for i, v := range vectors {
		out[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return out
}

func (p *parser) readMesh(params []string) (*Mesh, error) {
	mesh := &Mesh{Name: cleanParam(params)}

	vertices, faces, err := p.parse3DData(3, false)
	if err != nil {
		return nil, err
	}
	mesh.Vertices = toVec3s(vertices)
	mesh.Faces = faces

	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			return mesh, nil
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			return mesh, nil
		}
		if err != nil {
			return nil, err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternMaterialList.MatchString(hdr.name):
			err = p.readMaterialList(mesh)
		case PatternNormals.MatchString(hdr.name):
			var vectors [][]float32
			if vectors, mesh.NormalFaces, err = p.parse3DData(3, true); err == nil {
				mesh.NormalVertices = toVec3s(vectors)
				err = p.skipBlock()
			}
		case PatternUVMap.MatchString(hdr.name):
			var vectors [][]float32
			if vectors, mesh.UVFaces, err = p.parse3DData(2, true); err == nil {
				mesh.UVVertices = make([]math.Vec2, len(vectors))
				for i, v := range vectors {
					mesh.UVVertices[i] = math.Vec2{X: v[0], Y: v[1]}
				}
				err = p.skipBlock()
			}
		case PatternVertexColors.MatchString(hdr.name):
			var vectors [][]float32
			if vectors, mesh.VertexColorFaces, err = p.parse3DData(4, true); err == nil {
				mesh.VertexColors = make([]math.Vec4, len(vectors))
				for i, v := range vectors {
					mesh.VertexColors[i] = math.Vec4{v[0], v[1], v[2], v[3]}
				}
				err = p.skipBlock()
			}
		default:
			p.diag("unknown block in mesh", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return nil, err
		}
	}
}

// readMaterialList reads the declared material count, the face-material
// index list and the nested SI_Material blocks. Fewer materials than
// declared is tolerated by padding with defaults; a face index past the
// end of the list is a structural error.
func (p *parser) readMaterialList(mesh *Mesh) error {
	materialCount, err := p.size()
	if err != nil {
		return err
	}
	faceCount, err := p.size()
	if err != nil {
		return err
	}
	indices := make([]int, faceCount)
	for i := range indices {
		if indices[i], err = p.int(); err != nil {
			return err
		}
	}

	var materials []Material
	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			break
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			break
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternMaterial.MatchString(hdr.name):
			var mat Material
			if mat, err = p.readMaterial(); err == nil {
				materials = append(materials, mat)
			}
		default:
			p.diag("unknown block in material list", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}

	for len(materials) < materialCount {
		p.diag("missing material in material list", zap.Int("index", len(materials)))
		materials = append(materials, DefaultMaterial())
	}

	for _, idx := range indices {
		if idx < 0 || idx >= len(materials) {
			return p.lex.errf(ErrMaterialIndex, "index %d, %d materials", idx, len(materials))
		}
		mesh.FaceMaterials = append(mesh.FaceMaterials, materials[idx])
	}
	return nil
}

func (p *parser) readMaterial() (Material, error) {
	var mat Material

	diffuse, err := p.floats(4)
	if err != nil {
		return mat, err
	}
	mat.Diffuse = math.Vec4{diffuse[0], diffuse[1], diffuse[2], diffuse[3]}

	if mat.Hardness, err = p.float(); err != nil {
		return mat, err
	}

	specular, err := p.floats(3)
	if err != nil {
		return mat, err
	}
	mat.Specular = math.Vec3{X: specular[0], Y: specular[1], Z: specular[2]}

	emissive, err := p.floats(3)
	if err != nil {
		return mat, err
	}
	mat.Emissive = math.Vec3{X: emissive[0], Y: emissive[1], Z: emissive[2]}

	shading, err := p.count()
	if err != nil {
		return mat, err
	}
	mat.Shading = ShadingType(shading)

	ambient, err := p.floats(3)
	if err != nil {
		return mat, err
	}
	mat.Ambient = math.Vec3{X: ambient[0], Y: ambient[1], Z: ambient[2]}

	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			return mat, nil
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			return mat, nil
		}
		if err != nil {
			return mat, err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternTexture.MatchString(hdr.name):
			// Only the file name is used; texture addressing modes and
			// crop values in the rest of the block are irrelevant here.
			if mat.Texture, err = p.word(); err == nil {
				err = p.skipBlock()
			}
		default:
			p.diag("unknown block in material", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return mat, err
		}
	}
}

func (p *parser) readAnimationSet() error {
	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternAnimation.MatchString(hdr.name):
			err = p.readAnimation(hdr.params)
		default:
			p.diag("unknown block in animation set", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}
}

// readAnimation resolves the animation's target frame, which must have
// been declared earlier in the stream. A dangling reference skips the
// whole block.
func (p *parser) readAnimation(params []string) error {
	name := cleanParam(params)

	targetWord, err := p.word()
	if err != nil {
		return err
	}
	frameName := cleanName(targetWord)

	frame := p.xsi.FindFrame(frameName)
	if frame == nil {
		p.diag("animation references undefined frame",
			zap.String("frame", frameName), zap.String("animation", name))
		return p.skipBlock()
	}

	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternAnimationKey.MatchString(hdr.name):
			err = p.readAnimationKey(frame)
		default:
			p.diag("unknown block in animation",
				zap.String("block", hdr.name), zap.String("animation", name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}
}

// readAnimationKey reads one typed key channel. An unknown key type or
// a vector arity mismatch drops this channel only; the surrounding
// animation keeps parsing.
func (p *parser) readAnimationKey(frame *Frame) error {
	keyType, err := p.count()
	if err != nil {
		return err
	}

	key, err := NewAnimationKey(KeyType(keyType))
	if err != nil {
		p.diag("invalid animation key type", zap.Int("type", keyType), zap.String("frame", frame.Name))
		return p.skipBlock()
	}

	keyCount, err := p.count()
	if err != nil {
		return err
	}
	for i := 0; i < keyCount; i++ {
		keyframe, err := p.count()
		if err != nil {
			return err
		}
		arity, err := p.int()
		if err != nil {
			return err
		}
		if arity < 0 {
			p.diag("animation key vector size mismatch",
				zap.Int("type", keyType), zap.Int("arity", arity), zap.String("frame", frame.Name))
			return p.skipBlock()
		}
		vector, err := p.floats(arity)
		if err != nil {
			return err
		}
		if err := key.AddKey(keyframe, vector); err != nil {
			p.diag("animation key vector size mismatch",
				zap.Int("type", keyType), zap.Int("arity", arity), zap.String("frame", frame.Name))
			return p.skipBlock()
		}
	}

	frame.AnimationKeys = append(frame.AnimationKeys, key)
	return p.skipBlock()
}

// readEnvelopeList reads the declared envelope count and the nested
// SI_Envelope blocks. The count is only checked post-hoc for a mismatch
// warning, never enforced.
func (p *parser) readEnvelopeList() error {
	declared, err := p.count()
	if err != nil {
		return err
	}

	parsed := 0
	for {
		hdr, err := p.lex.nextHeader()
		if errors.Is(err, errEndOfBlock) {
			break
		}
		if errors.Is(err, io.EOF) {
			p.truncated = true
			break
		}
		if err != nil {
			return err
		}

		switch {
		case p.skipMatch(hdr.name):
			err = p.skipBlock()
		case PatternEnvelope.MatchString(hdr.name):
			if err = p.readEnvelope(); err == nil {
				parsed++
			}
		default:
			p.diag("unknown block in envelope list", zap.String("block", hdr.name))
			err = p.skipBlock()
		}
		if err != nil {
			return err
		}
	}

	if parsed != declared {
		p.diag("envelope count mismatch",
			zap.Int("declared", declared), zap.Int("parsed", parsed))
	}
	return nil
}

// readEnvelope resolves the mesh frame and bone frame references; both
// must already be in the frame table or the envelope is skipped. The
// bone frame is marked IsBone as a side effect.
func (p *parser) readEnvelope() error {
	frameWord, err := p.word()
	if err != nil {
		return err
	}
	boneWord, err := p.word()
	if err != nil {
		return err
	}
	frameName := cleanName(frameWord)
	boneName := cleanName(boneWord)

	frame := p.xsi.FindFrame(frameName)
	bone := p.xsi.FindFrame(boneName)
	if frame == nil {
		p.diag("envelope references undefined frame",
			zap.String("frame", frameName), zap.String("bone", boneName))
	}
	if bone == nil {
		p.diag("envelope references undefined bone",
			zap.String("bone", boneName), zap.String("frame", frameName))
	}
	if frame == nil || bone == nil {
		return p.skipBlock()
	}

	weightCount, err := p.count()
	if err != nil {
		return err
	}

	env := frame.AddEnvelope(bone)
	for i := 0; i < weightCount; i++ {
		vertexIndex, err := p.int()
		if err != nil {
			return err
		}
		value, err := p.float()
		if err != nil {
			return err
		}
		env.AddWeight(vertexIndex, value)
	}

	return p.skipBlock()
}
