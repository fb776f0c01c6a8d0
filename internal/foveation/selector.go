// Package foveation implements the Foveated Selector: per
// session head pose, classify an object's angular/distance zone relative to
// the viewer's forward direction and derive a LOD tier or SKIP. Pure
// trigonometry on three floats — no ecosystem library adds anything here
// (see DESIGN.md's stdlib-justification entry for this package).
package foveation

import "math"

// Vec3 is a position/direction in world space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// Pose is the latest head pose received for a session.
type Pose struct {
	Position  Vec3
	YawRad    float64
	FOVDeg    float64
	HasPose   bool
}

// Decision is the result of classifying one object against a pose.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionHigh
	DecisionLow
	DecisionNoOpinion // no pose received yet — caller should ask the bandwidth estimator instead
)

// ViewDirection derives the horizontal view vector from yaw:
// `(sin yaw, 0, -cos yaw)`.
func ViewDirection(yawRad float64) Vec3 {
	return Vec3{X: math.Sin(yawRad), Y: 0, Z: -math.Cos(yawRad)}
}

// AngleDegrees returns the angle, in degrees, between the viewer's forward
// direction and the vector from eye to an object at position p.
func AngleDegrees(eye Vec3, yawRad float64, p Vec3) float64 {
	dir := p.Sub(eye).Normalize()
	view := ViewDirection(yawRad)
	cos := dir.Dot(view)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// Classify implements the zone ladder: angle > 90 is SKIP (behind the
// viewer); 90 exactly is still far-peripheral, not SKIP.
func Classify(pose Pose, objectPos Vec3) Decision {
	if !pose.HasPose {
		return DecisionNoOpinion
	}

	angle := AngleDegrees(pose.Position, pose.YawRad, objectPos)
	distance := objectPos.Sub(pose.Position).Length()

	switch {
	case angle > 90:
		return DecisionSkip
	case angle <= 15:
		return DecisionHigh
	case angle <= 60:
		if distance < 30 {
			return DecisionLow
		}
		return DecisionSkip
	default: // angle <= 90
		if distance < 5 {
			return DecisionLow
		}
		return DecisionSkip
	}
}
