package xsi

import (
	"errors"
	"testing"

	"github.com/Faultbox/bzxsi/pkg/math"
)

func TestAddFrame_RenameDuplicates(t *testing.T) {
	x := NewXSI()

	first, err := x.AddFrame("body")
	if err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	second, err := x.AddFrame("body")
	if err != nil {
		t.Fatalf("AddFrame duplicate: %v", err)
	}

	if second.Name != "body_" {
		t.Errorf("renamed to %q, want %q", second.Name, "body_")
	}
	if x.FindFrame("body") != first {
		t.Error("original frame no longer registered under its name")
	}
	if x.FindFrame("body_") != second {
		t.Error("renamed frame not registered under its new name")
	}

	third, err := x.AddFrame("body")
	if err != nil {
		t.Fatalf("AddFrame second duplicate: %v", err)
	}
	if third.Name != "body__" {
		t.Errorf("renamed to %q, want %q", third.Name, "body__")
	}
}

func TestAddFrame_RejectDuplicates(t *testing.T) {
	x := NewXSI()
	x.Duplicates = RejectDuplicates

	if _, err := x.AddFrame("body"); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	if _, err := x.AddFrame("body"); !errors.Is(err, ErrDuplicateFrame) {
		t.Errorf("got %v, want ErrDuplicateFrame", err)
	}
}

func TestFrameHierarchy(t *testing.T) {
	x := NewXSI()

	root, _ := x.AddFrame("root")
	child, _ := root.AddFrame("child")
	grandchild, _ := child.AddFrame("leaf")

	if grandchild.Parent() != child {
		t.Error("grandchild parent mismatch")
	}
	if root.Parent() != nil {
		t.Error("root should have no parent")
	}
	if x.FindFrame("leaf") != grandchild {
		t.Error("nested frame not in XSI name table")
	}
	if root.FindFrame("leaf") != grandchild {
		t.Error("descendant search failed")
	}
	if child.FindFrame("child") != nil {
		t.Error("FindFrame must not match the frame itself")
	}

	all := x.AllFrames()
	want := []string{"root", "child", "leaf"}
	if len(all) != len(want) {
		t.Fatalf("AllFrames returned %d frames, want %d", len(all), len(want))
	}
	for i, f := range all {
		if f.Name != want[i] {
			t.Errorf("frame %d = %q, want %q (pre-order)", i, f.Name, want[i])
		}
	}
}

func TestChainedName(t *testing.T) {
	x := NewXSI()
	root, _ := x.AddFrame("tank")
	turret, _ := root.AddFrame("turret")
	barrel, _ := turret.AddFrame("barrel")

	if got := barrel.ChainedName("."); got != "tank.turret.barrel" {
		t.Errorf("ChainedName = %q", got)
	}
	if got := root.ChainedName("/"); got != "tank" {
		t.Errorf("root ChainedName = %q", got)
	}
}

func TestFrameQueries(t *testing.T) {
	x := NewXSI()
	root, _ := x.AddFrame("root")
	animated, _ := root.AddFrame("animated")
	skinned, _ := root.AddFrame("skinned")
	bone, _ := root.AddFrame("bone")

	if x.IsAnimated() || x.IsSkinned() {
		t.Fatal("empty graph reports animation or skinning")
	}

	if _, err := animated.AddAnimationKey(KeyTranslate); err != nil {
		t.Fatalf("AddAnimationKey: %v", err)
	}
	skinned.AddEnvelope(bone)

	if !x.IsAnimated() {
		t.Error("IsAnimated = false after adding keys")
	}
	if !x.IsSkinned() {
		t.Error("IsSkinned = false after adding an envelope")
	}
	if !bone.IsBone {
		t.Error("envelope target not marked as bone")
	}
	if x.EnvelopeCount() != 1 {
		t.Errorf("EnvelopeCount = %d, want 1", x.EnvelopeCount())
	}

	var names []string
	for f := range x.AnimatedFrames() {
		names = append(names, f.Name)
	}
	if len(names) != 1 || names[0] != "animated" {
		t.Errorf("AnimatedFrames = %v", names)
	}

	names = names[:0]
	for f := range x.BoneFrames() {
		names = append(names, f.Name)
	}
	if len(names) != 1 || names[0] != "bone" {
		t.Errorf("BoneFrames = %v", names)
	}
}

func TestFrameQueries_Restartable(t *testing.T) {
	x := NewXSI()
	root, _ := x.AddFrame("root")
	root.Mesh = &Mesh{Name: "m"}

	seq := x.Meshes()
	for range 2 {
		count := 0
		for range seq {
			count++
		}
		if count != 1 {
			t.Fatalf("mesh count = %d, want 1", count)
		}
	}
}

func TestWorldTransform(t *testing.T) {
	x := NewXSI()
	root, _ := x.AddFrame("root")
	child, _ := root.AddFrame("child")

	rt := TranslationMatrix(math.Vec3{X: 1, Y: 2, Z: 3})
	ct := TranslationMatrix(math.Vec3{X: 10, Y: 0, Z: 0})
	root.Transform = &rt
	child.Transform = &ct

	world := child.WorldTransform()
	pos := world.TransformPoint(math.Vec3{})

	want := math.Vec3{X: 11, Y: 2, Z: 3}
	if !almostEqualVec3(pos, want) {
		t.Errorf("world position = %+v, want %+v", pos, want)
	}
}

func TestMatrixMat4RoundTrip(t *testing.T) {
	m := Matrix{
		Right: math.Vec4{1, 0, 0, 0},
		Up:    math.Vec4{0, 0, -1, 0},
		Front: math.Vec4{0, 1, 0, 0},
		Posit: math.Vec4{4, 5, 6, 1},
	}

	if got := MatrixFromMat4(m.Mat4()); got != m {
		t.Errorf("round trip changed matrix: %+v", got)
	}
	if pos := m.Position(); pos != (math.Vec3{X: 4, Y: 5, Z: 6}) {
		t.Errorf("Position = %+v", pos)
	}
}

func almostEqualVec3(a, b math.Vec3) bool {
	const eps = 1e-5
	abs := func(v float32) float32 {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(a.X-b.X) < eps && abs(a.Y-b.Y) < eps && abs(a.Z-b.Z) < eps
}
