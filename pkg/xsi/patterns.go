package xsi

import "regexp"

// Block type names are matched fuzzily: the SI_ vendor prefix is
// optional, matching is case-insensitive, and several abbreviated forms
// are accepted. The patterns are evaluated in a fixed order by the
// reader, so a more specific pattern (FrameTransformMatrix) wins over a
// more general one (Frame).
//
// The exported patterns can be passed in Options.Skip to exclude whole
// block categories from a parse, e.g. PatternLight to ignore lights.
var (
	PatternFrame           = regexp.MustCompile(`(?i)^(?:SI_)?Frame`)
	PatternTransformMatrix = regexp.MustCompile(`(?i)^(?:SI_)?(?:Frame)?(?:Transform)?Matrix`)
	PatternPoseMatrix      = regexp.MustCompile(`(?i)^(?:SI_)?(?:Frame)?(?:Base)(?:Pose)?Matrix`)
	PatternMesh            = regexp.MustCompile(`(?i)^(?:SI_)?Mesh`)
	PatternMaterialList    = regexp.MustCompile(`(?i)^(?:SI_)?(?:Mesh)?MaterialList`)
	PatternMaterial        = regexp.MustCompile(`(?i)^(?:SI_)?(?:Mesh)?Material`)
	PatternTexture         = regexp.MustCompile(`(?i)^(?:SI_)?(?:Texture|TextureFilename)(?:2D)?`)
	PatternNormals         = regexp.MustCompile(`(?i)^(?:SI_)?(?:Mesh)?Normals`)
	PatternVertexColors    = regexp.MustCompile(`(?i)^(?:SI_)?(?:Mesh)?VertexColors`)
	PatternUVMap           = regexp.MustCompile(`(?i)^(?:SI_)?(?:Mesh)?TextureCoords`)
	PatternAnimationSet    = regexp.MustCompile(`(?i)^(?:SI_)?AnimationSet`)
	PatternAnimation       = regexp.MustCompile(`(?i)^(?:SI_)?Animation`)
	PatternAnimationKey    = regexp.MustCompile(`(?i)^(?:SI_)?AnimationKey`)
	PatternEnvelopeList    = regexp.MustCompile(`(?i)^(?:SI_)?EnvelopeList`)
	PatternEnvelope        = regexp.MustCompile(`(?i)^(?:SI_)?Envelope`)
	PatternLight           = regexp.MustCompile(`(?i)^(?:SI_)?Light`)
	PatternCamera          = regexp.MustCompile(`(?i)^(?:SI_)?Camera`)

	// PatternJunk covers scene-settings blocks the game engine never
	// consumes: fog, ambience, angles, coordinate systems and animation
	// parameters.
	PatternJunk = regexp.MustCompile(`(?i)^(?:SI_)?(?:Fog|Ambience|Angle|Coord.+?|AnimationParam.+?)`)

	patternHeader = regexp.MustCompile(`(?i)^\s*xsi\s*0101txt\s*0032\s*$`)
)

// DefaultSkip returns the default skip set: junk blocks only.
func DefaultSkip() []*regexp.Regexp {
	return []*regexp.Regexp{PatternJunk}
}
