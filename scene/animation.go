package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/vkngwrapper/deferred/uniforms"
)

// Motion computes a model transform from the elapsed time in seconds.
type Motion func(t float64) mgl32.Mat4

// Bobbing pushes a model back and forth along Z while it tumbles.
func Bobbing(t float64) mgl32.Mat4 {
	translate := mgl32.Translate3D(0, -5, float32(20+15*math.Sin(2*t)))
	rotate := mgl32.HomogRotate3D(float32(2*t), mgl32.Vec3{0.5, -0.5, 0.5}.Normalize())
	return translate.Mul4(rotate)
}

// Orbiting circles a model in the XY plane while it spins.
func Orbiting(t float64) mgl32.Mat4 {
	translate := mgl32.Translate3D(float32(3*math.Sin(t)), float32(2+3*math.Cos(t)), 15)
	rotate := mgl32.HomogRotate3D(float32(10*t), mgl32.Vec3{0.2, 0, 0.5}.Normalize())
	return translate.Mul4(rotate)
}

// Animator binds motions to models in a scene.
type Animator struct {
	scene   *Scene
	motions []boundMotion
}

type boundMotion struct {
	model  *Model
	motion Motion
}

func NewAnimator(s *Scene) *Animator {
	return &Animator{scene: s}
}

// Bind attaches motion to the model with the given id. It reports whether
// the model exists.
func (a *Animator) Bind(id uuid.UUID, motion Motion) bool {
	m, ok := a.scene.Get(id)
	if !ok {
		return false
	}
	a.motions = append(a.motions, boundMotion{model: m, motion: motion})
	return true
}

func (a *Animator) Update(t float64) {
	for _, b := range a.motions {
		b.model.SetTransform(b.motion(t))
	}
}

// ViewProjection looks down +Z from just behind the origin. Up is -Y so
// that the Vulkan clip space flip keeps the scene upright.
func ViewProjection(width, height int) uniforms.ViewProjection {
	aspect := float32(width) / float32(height)
	return uniforms.ViewProjection{
		View: mgl32.LookAtV(mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}),
		Proj: mgl32.Perspective(math.Pi/2, aspect, 0.05, 100),
	}
}

func LightAt(t float64) uniforms.Light {
	return uniforms.NewLight(
		[3]float32{0, 0, -1},
		[3]float32{float32((math.Sin(3*t) + 1) * 0.5), 0, 1},
		1,
	)
}

func CameraAt(t float64) uniforms.Camera {
	return uniforms.Camera{
		Position: [3]float32{0, 0, 0},
		Elapsed:  uint32(t),
	}
}
