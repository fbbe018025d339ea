package xsi

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const sampleScene = `xsi 0101txt 0032

SI_CoordinateSystem coord {
	1;0;1;0;2;5;
}

Frame frm-body {
	FrameTransformMatrix {
		1.0,0.0,0.0,0.0,
		0.0,1.0,0.0,0.0,
		0.0,0.0,1.0,0.0,
		0.0,0.0,5.0,1.0;;
	}
	Mesh body {
		3;
		0.0;0.0;0.0;,
		1.0;0.0;0.0;,
		0.0;1.0;0.0;;
		1;
		3;0,1,2;;
		MeshMaterialList {
			1;
			1;
			0;
			SI_Material {
				0.7;0.7;0.7;1.0;;
				200.0;
				0.35;0.35;0.35;;
				0.0;0.0;0.0;;
				2;
				0.5;0.5;0.5;;
				SI_Texture2D {
					"body.png";
				}
			}
		}
	}
	Frame frm-bone {
	}
}

AnimationSet {
	Animation anim-body {
		{frm-body}
		SI_AnimationKey {
			2;
			2;
			0;3;0.0;0.0;0.0;;,
			10;3;0.0;5.0;0.0;;;
		}
	}
}

SI_EnvelopeList {
	1;
	SI_Envelope {
		"frm-body";
		"frm-bone";
		2;
		0;100.0;,
		1;50.0;;
	}
}
`

func parseString(t *testing.T, input string, opts *Options) *XSI {
	t.Helper()
	x, err := Parse(strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return x
}

func TestParse_SampleScene(t *testing.T) {
	x := parseString(t, sampleScene, nil)

	body := x.FindFrame("body")
	if body == nil {
		t.Fatal("frame body not found")
	}
	if body.Transform == nil {
		t.Fatal("body transform missing")
	}
	if got := body.Transform.Posit; got[2] != 5 {
		t.Errorf("transform position z = %f, want 5", got[2])
	}

	if body.Mesh == nil {
		t.Fatal("body mesh missing")
	}
	if len(body.Mesh.Vertices) != 3 {
		t.Errorf("vertices = %d, want 3", len(body.Mesh.Vertices))
	}
	if len(body.Mesh.Faces) != 1 || len(body.Mesh.Faces[0]) != 3 {
		t.Fatalf("faces = %v", body.Mesh.Faces)
	}
	if len(body.Mesh.FaceMaterials) != 1 {
		t.Fatalf("face materials = %d, want 1", len(body.Mesh.FaceMaterials))
	}
	if got := body.Mesh.FaceMaterials[0].Texture; got != "body.png" {
		t.Errorf("texture = %q, want body.png", got)
	}

	bone := x.FindFrame("bone")
	if bone == nil {
		t.Fatal("frame bone not found")
	}
	if !bone.IsBone {
		t.Error("bone frame not marked after envelope parse")
	}

	if len(body.AnimationKeys) != 1 {
		t.Fatalf("animation keys = %d, want 1", len(body.AnimationKeys))
	}
	key := body.AnimationKeys[0]
	if key.Type != KeyTranslate {
		t.Errorf("key type = %v, want Translation", key.Type)
	}
	if len(key.Keys) != 2 || key.Keys[1].Keyframe != 10 || key.Keys[1].Value[1] != 5 {
		t.Errorf("keys = %+v", key.Keys)
	}

	if len(body.Envelopes) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(body.Envelopes))
	}
	env := body.Envelopes[0]
	if env.Bone != bone {
		t.Error("envelope bone reference mismatch")
	}
	if len(env.Weights) != 2 || env.Weights[0].VertexIndex != 0 || env.Weights[0].Value != 100 {
		t.Errorf("weights = %+v", env.Weights)
	}
}

func TestParse_InvalidHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong signature", "xsi 0102txt 0032\nFrame frm-a {\n}\n"},
		{"binary flavor", "xsi 0101bin 0032\n"},
		{"empty stream", ""},
		{"garbage", "not an xsi file at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := Parse(strings.NewReader(tt.input), nil)
			if !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("got %v, want ErrInvalidHeader", err)
			}
			if x != nil {
				t.Error("graph returned despite fatal header error")
			}
		})
	}
}

func TestParse_HeaderCaseAndSpacing(t *testing.T) {
	x := parseString(t, "XSI  0101TXT\t0032\nFrame frm-a {\n}\n", nil)
	if x.FindFrame("a") == nil {
		t.Error("frame after tolerant header not parsed")
	}
}

func TestParse_UnknownBlockSkipped(t *testing.T) {
	input := `xsi 0101txt 0032
FooBar 1 2 {
	junk { nested junk }
	more junk
}
Frame frm-kept {
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	if x.FindFrame("kept") == nil {
		t.Error("frame after unknown block not parsed")
	}
	if logs.FilterMessage("unknown block in XSI").Len() != 1 {
		t.Errorf("expected one unknown-block warning, logs: %+v", logs.All())
	}
}

func TestParse_UnknownBlockInsideFrame(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
	Mystery {
		{ deep { deeper } }
	}
	Frame frm-b {
	}
}
`
	x := parseString(t, input, nil)
	if x.FindFrame("b") == nil {
		t.Error("sibling after unknown nested block lost")
	}
}

func TestParse_SkipSet(t *testing.T) {
	input := `xsi 0101txt 0032
SI_Light lamp {
	0;
	1.0;1.0;1.0;
	1.0;2.0;3.0;
}
Frame frm-a {
}
`
	x := parseString(t, input, nil)
	if len(x.Lights) != 1 {
		t.Fatalf("lights = %d, want 1", len(x.Lights))
	}
	if got := x.Lights[0].Transform.Position(); got.Z != 3 {
		t.Errorf("light position z = %f, want 3", got.Z)
	}

	x = parseString(t, input, &Options{
		Skip: []*regexp.Regexp{PatternJunk, PatternLight},
	})
	if len(x.Lights) != 0 {
		t.Errorf("lights = %d, want 0 with PatternLight skipped", len(x.Lights))
	}
	if x.FindFrame("a") == nil {
		t.Error("frame after skipped light lost")
	}
}

func TestParse_Camera(t *testing.T) {
	input := `xsi 0101txt 0032
SI_Camera cam {
	0.0;10.0;-20.0;
	0.0;0.0;0.0;
	0.0;
	0.1;
	1000.0;
}
`
	x := parseString(t, input, nil)
	if len(x.Cameras) != 1 {
		t.Fatalf("cameras = %d, want 1", len(x.Cameras))
	}
	cam := x.Cameras[0]
	if cam.Transform.Position().Y != 10 {
		t.Errorf("camera position = %+v", cam.Transform.Position())
	}
	if cam.FarPlane != 1000 {
		t.Errorf("far plane = %f, want 1000", cam.FarPlane)
	}
}

func TestParse_MissingMaterialPadded(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
	Mesh a {
		3;
		0.0;0.0;0.0;,
		1.0;0.0;0.0;,
		0.0;1.0;0.0;;
		2;
		3;0,1,2;,
		3;2,1,0;;
		MeshMaterialList {
			2;
			2;
			0,
			1;
			SI_Material {
				1.0;0.0;0.0;1.0;;
				50.0;
				0.0;0.0;0.0;;
				0.0;0.0;0.0;;
				2;
				0.0;0.0;0.0;;
			}
		}
	}
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	mesh := x.FindFrame("a").Mesh
	if len(mesh.FaceMaterials) != 2 {
		t.Fatalf("face materials = %d, want 2", len(mesh.FaceMaterials))
	}
	if mesh.FaceMaterials[1] != DefaultMaterial() {
		t.Errorf("missing material not padded with default: %+v", mesh.FaceMaterials[1])
	}
	if logs.FilterMessage("missing material in material list").Len() != 1 {
		t.Error("expected a missing-material warning")
	}
}

func TestParse_MaterialIndexOutOfRange(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
	Mesh a {
		3;
		0.0;0.0;0.0;,
		1.0;0.0;0.0;,
		0.0;1.0;0.0;;
		1;
		3;0,1,2;;
		MeshMaterialList {
			1;
			1;
			5;
			SI_Material {
				1.0;0.0;0.0;1.0;;
				50.0;
				0.0;0.0;0.0;;
				0.0;0.0;0.0;;
				2;
				0.0;0.0;0.0;;
			}
		}
	}
}
`
	x, err := Parse(strings.NewReader(input), nil)
	if !errors.Is(err, ErrMaterialIndex) {
		t.Errorf("got %v, want ErrMaterialIndex", err)
	}
	if x != nil {
		t.Error("graph returned despite fatal material index error")
	}
}

func TestParse_BadAnimationKeyRecovered(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
}
AnimationSet {
	Animation anim-a {
		{frm-a}
		SI_AnimationKey {
			9;
			1;
			0;3;1.0;1.0;1.0;;;
		}
		SI_AnimationKey {
			1;
			1;
			0;3;2.0;2.0;2.0;;;
		}
	}
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	frame := x.FindFrame("a")
	if len(frame.AnimationKeys) != 1 {
		t.Fatalf("animation keys = %d, want 1 (bad channel dropped)", len(frame.AnimationKeys))
	}
	if frame.AnimationKeys[0].Type != KeyScale {
		t.Errorf("surviving key type = %v, want Scale", frame.AnimationKeys[0].Type)
	}
	if logs.FilterMessage("invalid animation key type").Len() != 1 {
		t.Error("expected an invalid-key-type warning")
	}
}

func TestParse_DanglingAnimationTarget(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
}
AnimationSet {
	Animation anim-ghost {
		{frm-ghost}
		SI_AnimationKey {
			2;
			1;
			0;3;1.0;1.0;1.0;;;
		}
	}
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	if x.IsAnimated() {
		t.Error("dangling animation attached to some frame")
	}
	if logs.FilterMessage("animation references undefined frame").Len() != 1 {
		t.Error("expected a dangling-reference warning")
	}
}

func TestParse_DanglingEnvelopeRefs(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
}
SI_EnvelopeList {
	1;
	SI_Envelope {
		"frm-a";
		"frm-ghost";
		1;
		0;100.0;;
	}
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	if x.IsSkinned() {
		t.Error("envelope with dangling bone attached anyway")
	}
	if logs.FilterMessage("envelope references undefined bone").Len() != 1 {
		t.Error("expected a dangling-bone warning")
	}
	if logs.FilterMessage("envelope count mismatch").Len() != 1 {
		t.Error("expected a count-mismatch warning")
	}
}

func TestParse_NegativeSizes(t *testing.T) {
	// Declared sizes feed slice allocations; a negative one must surface
	// as a structured error, never a crash.
	tests := []struct {
		name  string
		input string
	}{
		{
			name: "vertex count",
			input: `xsi 0101txt 0032
Frame frm-a {
	Mesh a {
		-3;
	}
}
`,
		},
		{
			name: "face arity",
			input: `xsi 0101txt 0032
Frame frm-a {
	Mesh a {
		1;
		0.0;0.0;0.0;;
		1;
		-1;;
	}
}
`,
		},
		{
			name: "material face count",
			input: `xsi 0101txt 0032
Frame frm-a {
	Mesh a {
		1;
		0.0;0.0;0.0;;
		1;
		1;0;;
		MeshMaterialList {
			1;
			-2;
		}
	}
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := Parse(strings.NewReader(tt.input), nil)
			if !errors.Is(err, ErrExpectedNumber) {
				t.Errorf("got %v, want ErrExpectedNumber", err)
			}
			if x != nil {
				t.Error("graph returned despite structural size error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("got %T, want *ParseError", err)
			}
		})
	}
}

func TestParse_NegativeKeyArityRecovered(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
}
AnimationSet {
	Animation anim-a {
		{frm-a}
		SI_AnimationKey {
			2;
			1;
			0;-4;;
		}
		SI_AnimationKey {
			1;
			1;
			0;3;1.0;1.0;1.0;;;
		}
	}
}
`
	core, logs := observer.New(zap.WarnLevel)
	x := parseString(t, input, &Options{Log: zap.New(core)})

	frame := x.FindFrame("a")
	if len(frame.AnimationKeys) != 1 {
		t.Fatalf("animation keys = %d, want 1 (bad channel dropped)", len(frame.AnimationKeys))
	}
	if frame.AnimationKeys[0].Type != KeyScale {
		t.Errorf("surviving key type = %v, want Scale", frame.AnimationKeys[0].Type)
	}
	if logs.FilterMessage("animation key vector size mismatch").Len() != 1 {
		t.Error("expected a vector-size warning")
	}
}

func TestParse_NegativeWeightCount(t *testing.T) {
	// A negative weight count bounds a read loop, not an allocation, and
	// simply yields an empty envelope.
	input := `xsi 0101txt 0032
Frame frm-a {
}
Frame frm-b {
}
SI_EnvelopeList {
	1;
	SI_Envelope {
		"frm-a";
		"frm-b";
		-5;
	}
}
`
	x := parseString(t, input, nil)

	a := x.FindFrame("a")
	if len(a.Envelopes) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(a.Envelopes))
	}
	if len(a.Envelopes[0].Weights) != 0 {
		t.Errorf("weights = %d, want 0", len(a.Envelopes[0].Weights))
	}
	if bone := x.FindFrame("b"); bone == nil || !bone.IsBone {
		t.Error("bone not marked for empty envelope")
	}
}

func TestParse_Truncated(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-a {
	Frame frm-b {
`
	x, err := Parse(strings.NewReader(input), nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
	if x == nil {
		t.Fatal("truncated parse must still return the partial graph")
	}
	if x.FindFrame("a") == nil || x.FindFrame("b") == nil {
		t.Error("frames read before truncation lost")
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Error("truncation error is not a ParseError")
	}
}

func TestParse_DuplicateFrames(t *testing.T) {
	input := `xsi 0101txt 0032
Frame frm-dup {
}
Frame frm-dup {
}
`

	t.Run("rename", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		x := parseString(t, input, &Options{Log: zap.New(core)})

		if x.FindFrame("dup") == nil || x.FindFrame("dup_") == nil {
			t.Error("duplicate frame not renamed")
		}
		if logs.FilterMessage("duplicate frame renamed").Len() != 1 {
			t.Error("expected a rename warning")
		}
	})

	t.Run("reject", func(t *testing.T) {
		x, err := Parse(strings.NewReader(input), &Options{Duplicates: RejectDuplicates})
		if !errors.Is(err, ErrDuplicateFrame) {
			t.Errorf("got %v, want ErrDuplicateFrame", err)
		}
		if x != nil {
			t.Error("graph returned despite duplicate rejection")
		}
	})
}

func TestParse_FuzzyBlockNames(t *testing.T) {
	input := `xsi 0101txt 0032
SI_Frame frm-a {
	si_frametransformmatrix {
		1,0,0,0,
		0,1,0,0,
		0,0,1,0,
		0,0,0,1;;
	}
	SI_Frame frm-b {
	}
}
`
	x := parseString(t, input, nil)
	a := x.FindFrame("a")
	if a == nil {
		t.Fatal("SI_-prefixed frame not recognized")
	}
	if a.Transform == nil {
		t.Error("lower-case transform block not recognized")
	}
	if x.FindFrame("b") == nil {
		t.Error("nested SI_Frame not recognized")
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	input := "xsi 0101txt 0032\nFrame frm-a {\n\tFrameTransformMatrix {\n\t\tbogus,\n"
	_, err := Parse(strings.NewReader(input), nil)

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %T, want *ParseError", err)
	}
	if !errors.Is(err, ErrExpectedNumber) {
		t.Errorf("got %v, want ErrExpectedNumber", err)
	}
	if perr.Line != 4 {
		t.Errorf("error line = %d, want 4", perr.Line)
	}
}

func TestParse_NoSIPrefixAnimation(t *testing.T) {
	// The anim- prefix on both the animation name and its target must be
	// stripped before frame lookup, with or without braces.
	input := `xsi 0101txt 0032
Frame frm-a {
}
AnimationSet {
	Animation anim-a {
		frm-a
		SI_AnimationKey {
			0;
			1;
			0;4;1.0;0.0;0.0;0.0;;;
		}
	}
}
`
	x := parseString(t, input, nil)
	frame := x.FindFrame("a")
	if len(frame.AnimationKeys) != 1 {
		t.Fatalf("animation keys = %d, want 1", len(frame.AnimationKeys))
	}
	if frame.AnimationKeys[0].Type != KeyRotateQuat {
		t.Errorf("key type = %v, want QuaternionRotation", frame.AnimationKeys[0].Type)
	}
}
