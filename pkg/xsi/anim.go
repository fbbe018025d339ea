package xsi

import (
	"fmt"

	"github.com/Faultbox/bzxsi/pkg/math"
)

// KeyType identifies one animated channel of a frame. Each type has a
// fixed per-key vector arity.
type KeyType int

const (
	// KeyRotateQuat stores WXYZ quaternion rotations.
	KeyRotateQuat KeyType = 0
	// KeyScale stores XYZ scale factors.
	KeyScale KeyType = 1
	// KeyTranslate stores XYZ translations.
	KeyTranslate KeyType = 2
	// KeyRotateEuler stores XYZ euler angles.
	KeyRotateEuler KeyType = 3
)

// VectorSize returns the fixed vector arity for the type, or 0 if the
// type is not one of the four known variants.
func (t KeyType) VectorSize() int {
	switch t {
	case KeyRotateQuat:
		return 4
	case KeyScale, KeyTranslate, KeyRotateEuler:
		return 3
	}
	return 0
}

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	return t.VectorSize() != 0
}

// String returns a human-readable key type name.
func (t KeyType) String() string {
	switch t {
	case KeyRotateQuat:
		return "QuaternionRotation"
	case KeyScale:
		return "Scale"
	case KeyTranslate:
		return "Translation"
	case KeyRotateEuler:
		return "EulerRotation"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Key is one keyframed value.
type Key struct {
	Keyframe int
	Value    []float32
}

// AnimationKey is one typed channel of keyframed values for a frame.
// The format does not require keys to be sorted by keyframe and
// consumers must not assume monotonic order.
type AnimationKey struct {
	Type KeyType
	Keys []Key
}

// NewAnimationKey returns an empty channel, or ErrInvalidKeyType.
func NewAnimationKey(keyType KeyType) (*AnimationKey, error) {
	if !keyType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeyType, int(keyType))
	}
	return &AnimationKey{Type: keyType}, nil
}

// AddKey appends a key. The vector arity must match the channel type's
// fixed size; on mismatch the key list is left unchanged.
func (k *AnimationKey) AddKey(keyframe int, vector []float32) error {
	if len(vector) != k.Type.VectorSize() {
		return fmt.Errorf("%w: type %s wants %d components, got %d",
			ErrVectorSize, k.Type, k.Type.VectorSize(), len(vector))
	}
	k.Keys = append(k.Keys, Key{Keyframe: keyframe, Value: vector})
	return nil
}

// ToEuler converts a quaternion-rotation channel into an equivalent
// euler-rotation channel. The receiver is not modified.
func (k *AnimationKey) ToEuler() (*AnimationKey, error) {
	if k.Type != KeyRotateQuat {
		return nil, fmt.Errorf("%w: cannot convert %s to euler", ErrInvalidKeyType, k.Type)
	}

	out := &AnimationKey{Type: KeyRotateEuler, Keys: make([]Key, 0, len(k.Keys))}
	for _, key := range k.Keys {
		q := math.Quat{W: key.Value[0], X: key.Value[1], Y: key.Value[2], Z: key.Value[3]}
		e := q.Normalize().Euler()
		out.Keys = append(out.Keys, Key{
			Keyframe: key.Keyframe,
			Value:    []float32{e.X, e.Y, e.Z},
		})
	}
	return out, nil
}

// ToQuaternion converts a euler-rotation channel into an equivalent
// quaternion-rotation channel. The receiver is not modified.
func (k *AnimationKey) ToQuaternion() (*AnimationKey, error) {
	if k.Type != KeyRotateEuler {
		return nil, fmt.Errorf("%w: cannot convert %s to quaternion", ErrInvalidKeyType, k.Type)
	}

	out := &AnimationKey{Type: KeyRotateQuat, Keys: make([]Key, 0, len(k.Keys))}
	for _, key := range k.Keys {
		q := math.QuatFromEuler(math.Vec3{X: key.Value[0], Y: key.Value[1], Z: key.Value[2]})
		out.Keys = append(out.Keys, Key{
			Keyframe: key.Keyframe,
			Value:    []float32{q.W, q.X, q.Y, q.Z},
		})
	}
	return out, nil
}

// Weight is how strongly one bone influences one vertex.
type Weight struct {
	VertexIndex int
	Value       float32 // percentage influence
}

// Envelope binds vertices of a mesh-bearing frame to one bone frame.
// The bone reference is non-owning.
type Envelope struct {
	Bone    *Frame
	Weights []Weight
}

// AddWeight appends one (vertex, percentage) influence pair.
func (e *Envelope) AddWeight(vertexIndex int, value float32) {
	e.Weights = append(e.Weights, Weight{VertexIndex: vertexIndex, Value: value})
}
