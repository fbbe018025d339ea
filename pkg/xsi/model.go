// Package xsi reads and writes Battlezone 2 XSI scene files, a
// text-based softimage-style format holding a frame hierarchy with
// meshes, materials, animation keys and skinning envelopes.
package xsi

import (
	"fmt"
	"iter"
	"strings"

	"github.com/Faultbox/bzxsi/pkg/math"
)

// UnnamedFrame is substituted for blocks that declare no name.
const UnnamedFrame = "unnamed"

// DefaultXSIName names graphs not created from a file.
const DefaultXSIName = "<XSI ROOT>"

// maxRenameAttempts bounds the duplicate-name suffix loop.
const maxRenameAttempts = 9999

// DuplicatePolicy selects how AddFrame treats a name collision.
type DuplicatePolicy int

const (
	// RenameDuplicates appends '_' to the new name until it is unique.
	RenameDuplicates DuplicatePolicy = iota
	// RejectDuplicates makes AddFrame fail with ErrDuplicateFrame.
	RejectDuplicates
)

// XSI is the root container of a scene: one or more disjoint frame
// hierarchies plus the scene's lights and cameras. Every frame in the
// graph is registered in a flat name table for O(1) cross-reference
// resolution; frame names are unique per XSI.
type XSI struct {
	Name    string
	Frames  []*Frame
	Lights  []*PointLight
	Cameras []*Camera

	// Duplicates is consulted by AddFrame on a name collision.
	Duplicates DuplicatePolicy

	frameTable map[string]*Frame
}

// NewXSI returns an empty scene graph.
func NewXSI() *XSI {
	return &XSI{
		Name:       DefaultXSIName,
		frameTable: make(map[string]*Frame),
	}
}

// AddFrame creates a root frame and registers it in the frame table.
// On a name collision the frame is renamed or the call fails,
// depending on the Duplicates policy.
func (x *XSI) AddFrame(name string) (*Frame, error) {
	return x.addFrame(nil, name)
}

func (x *XSI) addFrame(parent *Frame, name string) (*Frame, error) {
	if _, exists := x.frameTable[name]; exists {
		if x.Duplicates == RejectDuplicates {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFrame, name)
		}

		renamed := name
		for attempt := 0; ; attempt++ {
			if attempt >= maxRenameAttempts {
				return nil, fmt.Errorf("%w: %q", ErrRenameFailed, name)
			}
			renamed += "_"
			if _, exists := x.frameTable[renamed]; !exists {
				break
			}
		}
		name = renamed
	}

	frame := &Frame{Name: name, parent: parent, xsi: x}
	x.frameTable[name] = frame

	if parent != nil {
		parent.Frames = append(parent.Frames, frame)
	} else {
		x.Frames = append(x.Frames, frame)
	}

	return frame, nil
}

// FindFrame returns the frame registered under name, or nil.
func (x *XSI) FindFrame(name string) *Frame {
	return x.frameTable[name]
}

// AllFrames returns every frame in the graph in depth-first pre-order.
func (x *XSI) AllFrames() []*Frame {
	return collectFrames(nil, x.Frames)
}

// AnimatedFrames yields frames with at least one animation key,
// in pre-order. The sequence is lazy and restartable.
func (x *XSI) AnimatedFrames() iter.Seq[*Frame] {
	return filterFrames(x.Frames, func(f *Frame) bool { return len(f.AnimationKeys) > 0 })
}

// SkinnedFrames yields frames owning at least one envelope, in pre-order.
func (x *XSI) SkinnedFrames() iter.Seq[*Frame] {
	return filterFrames(x.Frames, func(f *Frame) bool { return len(f.Envelopes) > 0 })
}

// BoneFrames yields frames referenced as a bone by some envelope.
func (x *XSI) BoneFrames() iter.Seq[*Frame] {
	return filterFrames(x.Frames, func(f *Frame) bool { return f.IsBone })
}

// Meshes yields every mesh in the graph, in frame pre-order.
func (x *XSI) Meshes() iter.Seq[*Mesh] {
	return func(yield func(*Mesh) bool) {
		for f := range filterFrames(x.Frames, func(f *Frame) bool { return f.Mesh != nil }) {
			if !yield(f.Mesh) {
				return
			}
		}
	}
}

// EnvelopeCount returns the total number of envelopes in the graph.
func (x *XSI) EnvelopeCount() int {
	total := 0
	for f := range x.SkinnedFrames() {
		total += len(f.Envelopes)
	}
	return total
}

// IsAnimated reports whether any frame has animation keys.
func (x *XSI) IsAnimated() bool {
	for range x.AnimatedFrames() {
		return true
	}
	return false
}

// IsSkinned reports whether any frame owns envelopes.
func (x *XSI) IsSkinned() bool {
	for range x.SkinnedFrames() {
		return true
	}
	return false
}

// Frame is a named node in the scene hierarchy. It may carry a local
// transform, a bind-pose transform (skinned frames only) and a mesh,
// and owns its child frames, animation keys and envelopes.
//
// Envelopes live on the mesh-bearing frame they deform; a frame
// referenced by an envelope is marked IsBone as a side effect and never
// carries envelopes of its own.
type Frame struct {
	Name   string
	IsBone bool

	Transform *Matrix
	Pose      *Matrix
	Mesh      *Mesh

	Frames        []*Frame
	AnimationKeys []*AnimationKey
	Envelopes     []*Envelope

	parent *Frame
	xsi    *XSI
}

// Parent returns the owning frame, or nil for root frames.
func (f *Frame) Parent() *Frame {
	return f.parent
}

// AddFrame creates a child frame, subject to the owning XSI's
// duplicate-name policy.
func (f *Frame) AddFrame(name string) (*Frame, error) {
	return f.xsi.addFrame(f, name)
}

// AddAnimationKey appends a new empty key channel of the given type.
func (f *Frame) AddAnimationKey(keyType KeyType) (*AnimationKey, error) {
	key, err := NewAnimationKey(keyType)
	if err != nil {
		return nil, err
	}
	f.AnimationKeys = append(f.AnimationKeys, key)
	return key, nil
}

// AddEnvelope appends a skinning envelope bound to bone, and marks the
// bone frame. A frame only learns it is a bone by being referenced here.
func (f *Frame) AddEnvelope(bone *Frame) *Envelope {
	bone.IsBone = true
	env := &Envelope{Bone: bone}
	f.Envelopes = append(f.Envelopes, env)
	return env
}

// FindFrame searches the frame's descendants for name.
func (f *Frame) FindFrame(name string) *Frame {
	for _, d := range f.AllFrames() {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// AllFrames returns the frame's descendants in depth-first pre-order,
// not including the frame itself.
func (f *Frame) AllFrames() []*Frame {
	return collectFrames(nil, f.Frames)
}

// AnimatedFrames yields descendant frames with animation keys.
func (f *Frame) AnimatedFrames() iter.Seq[*Frame] {
	return filterFrames(f.Frames, func(d *Frame) bool { return len(d.AnimationKeys) > 0 })
}

// SkinnedFrames yields descendant frames owning envelopes.
func (f *Frame) SkinnedFrames() iter.Seq[*Frame] {
	return filterFrames(f.Frames, func(d *Frame) bool { return len(d.Envelopes) > 0 })
}

// ChainedName returns the names from the root down to this frame,
// joined by sep.
func (f *Frame) ChainedName(sep string) string {
	var chain []string
	for frm := f; frm != nil; frm = frm.parent {
		chain = append(chain, frm.Name)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return strings.Join(chain, sep)
}

// WorldTransform returns the frame's transform composed with all of its
// ancestors'. Frames without a local transform contribute identity.
func (f *Frame) WorldTransform() math.Mat4 {
	local := math.Identity()
	if f.Transform != nil {
		local = f.Transform.Mat4()
	}
	if f.parent == nil {
		return local
	}
	return f.parent.WorldTransform().Mul(local)
}

func collectFrames(out []*Frame, frames []*Frame) []*Frame {
	for _, f := range frames {
		out = append(out, f)
		out = collectFrames(out, f.Frames)
	}
	return out
}

// filterFrames walks frames in pre-order yielding those matching pred.
// The returned sequence re-walks the graph on every range, so
// mutations between calls are always reflected.
func filterFrames(frames []*Frame, pred func(*Frame) bool) iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		var walk func([]*Frame) bool
		walk = func(frames []*Frame) bool {
			for _, f := range frames {
				if pred(f) && !yield(f) {
					return false
				}
				if !walk(f.Frames) {
					return false
				}
			}
			return true
		}
		walk(frames)
	}
}

// Matrix is an affine transform stored as the four row vectors the file
// format serializes: right, up, front and position. Value type;
// IdentityMatrix is the default for unspecified transforms.
type Matrix struct {
	Right math.Vec4
	Up    math.Vec4
	Front math.Vec4
	Posit math.Vec4
}

// IdentityMatrix returns the identity transform.
func IdentityMatrix() Matrix {
	return Matrix{
		Right: math.Vec4{1, 0, 0, 0},
		Up:    math.Vec4{0, 1, 0, 0},
		Front: math.Vec4{0, 0, 1, 0},
		Posit: math.Vec4{0, 0, 0, 1},
	}
}

// TranslationMatrix returns an identity transform positioned at pos.
func TranslationMatrix(pos math.Vec3) Matrix {
	m := IdentityMatrix()
	m.Posit = math.Vec4{pos.X, pos.Y, pos.Z, 1}
	return m
}

// Position returns the translation component.
func (m Matrix) Position() math.Vec3 {
	return m.Posit.Vec3()
}

// Mat4 converts to a column-major matrix; the row vectors become the
// basis columns, so TransformPoint applies right/up/front/posit the way
// the format intends.
func (m Matrix) Mat4() math.Mat4 {
	return math.Mat4{
		m.Right[0], m.Right[1], m.Right[2], m.Right[3],
		m.Up[0], m.Up[1], m.Up[2], m.Up[3],
		m.Front[0], m.Front[1], m.Front[2], m.Front[3],
		m.Posit[0], m.Posit[1], m.Posit[2], m.Posit[3],
	}
}

// MatrixFromMat4 is the inverse of Matrix.Mat4.
func MatrixFromMat4(m math.Mat4) Matrix {
	return Matrix{
		Right: math.Vec4{m[0], m[1], m[2], m[3]},
		Up:    math.Vec4{m[4], m[5], m[6], m[7]},
		Front: math.Vec4{m[8], m[9], m[10], m[11]},
		Posit: math.Vec4{m[12], m[13], m[14], m[15]},
	}
}

// PointLight is a point light source.
type PointLight struct {
	Name      string
	Color     math.Vec3
	Transform Matrix
}

// NewPointLight returns a point light at position with the given color.
func NewPointLight(name string, color, position math.Vec3) *PointLight {
	return &PointLight{
		Name:      name,
		Color:     color,
		Transform: TranslationMatrix(position),
	}
}

// Camera is a scene camera: a position, a look-at target and the
// roll/near/far parameters stored in SI_Camera blocks.
type Camera struct {
	Name      string
	Roll      float32
	NearPlane float32
	FarPlane  float32
	Transform Matrix
	Target    Matrix
}

// NewCamera returns a camera at position looking at lookAt.
func NewCamera(name string, position, lookAt math.Vec3, roll, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Name:      name,
		Roll:      roll,
		NearPlane: nearPlane,
		FarPlane:  farPlane,
		Transform: TranslationMatrix(position),
		Target:    TranslationMatrix(lookAt),
	}
}
