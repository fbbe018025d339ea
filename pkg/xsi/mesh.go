package xsi

import (
	"slices"

	"github.com/Faultbox/bzxsi/pkg/math"
)

// Face is a variable-arity list of vertex indices.
type Face []int

// Mesh holds the geometry owned by one frame. The normal, UV and
// vertex-color layers keep their own vertex and face arrays; their face
// topology is independent of the position faces (commonly per-loop) and
// is never required to match its arity.
type Mesh struct {
	Name string

	Vertices []math.Vec3
	Faces    []Face

	NormalVertices []math.Vec3
	NormalFaces    []Face

	UVVertices []math.Vec2
	UVFaces    []Face

	VertexColors     []math.Vec4
	VertexColorFaces []Face

	// FaceMaterials assigns one material value per position face. The
	// index form used on disk is a derived view, see MaterialIndices.
	FaceMaterials []Material
}

// MaterialIndices deduplicates FaceMaterials by first-seen structural
// equality, returning the per-face index list and the distinct
// materials it indexes into.
func (m *Mesh) MaterialIndices() ([]int, []Material) {
	var materials []Material
	indices := make([]int, 0, len(m.FaceMaterials))

	for _, mat := range m.FaceMaterials {
		idx := slices.Index(materials, mat)
		if idx < 0 {
			materials = append(materials, mat)
			idx = len(materials) - 1
		}
		indices = append(indices, idx)
	}

	return indices, materials
}

// ShadingType is the shading model identifier stored in SI_Material
// blocks. Battlezone 2 materials almost always use 2.
type ShadingType int

// DefaultShading is the shading model assumed for defaulted materials.
const DefaultShading ShadingType = 2

// Material is a value type; equality is structural over all fields,
// which MaterialIndices relies on for deduplication.
type Material struct {
	Diffuse  math.Vec4 // RGBA
	Hardness float32
	Specular math.Vec3 // RGB
	Emissive math.Vec3 // RGB
	Shading  ShadingType
	Ambient  math.Vec3 // RGB
	Texture  string    // texture file name, empty when untextured
}

// DefaultMaterial returns the material substituted for any entry a
// MaterialList declares but does not define.
func DefaultMaterial() Material {
	return Material{
		Diffuse:  math.Vec4{0.7, 0.7, 0.7, 1.0},
		Hardness: 200,
		Specular: math.Vec3{X: 0.35, Y: 0.35, Z: 0.35},
		Emissive: math.Vec3{},
		Shading:  DefaultShading,
		Ambient:  math.Vec3{X: 0.5, Y: 0.5, Z: 0.5},
	}
}
