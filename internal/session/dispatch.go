package session

import (
	"encoding/json"
	"time"

	"github.com/streamxr/core/internal/assets"
	"github.com/streamxr/core/internal/foveation"
	"github.com/streamxr/core/internal/objects"
	"github.com/streamxr/core/internal/rooms"
	"github.com/streamxr/core/internal/wire"
)

// dispatch routes one decoded control frame by its "type" field. Unmarshal
// errors inside a handler just drop that frame — a malformed field is no
// worse than a frame that never arrived. ping and get-room-objects are the
// exceptions: they reply using whatever fields did decode.
func (b *Broker) dispatch(kind string, raw []byte) {
	switch kind {
	case "signal":
		b.onSignal(raw)
	case "list_assets":
		b.onListAssets()
	case "request_asset":
		b.onRequestAsset(raw)
	case "request_nerf":
		b.onRequestNeRF(raw)
	case "set_render_mode":
		b.onSetRenderMode(raw)
	case "bandwidth-metrics":
		b.onBandwidthMetrics(raw)
	case "head-tracking":
		b.onHeadTracking(raw)
	case "position-update":
		b.onPositionUpdate(raw)
	case "get-room-objects":
		b.onGetRoomObjects(raw)
	case "create-object":
		b.onCreateObject(raw)
	case "update-object":
		b.onUpdateObject(raw)
	case "delete-object":
		b.onDeleteObject(raw)
	case "grab-object":
		b.onGrabObject(raw)
	case "release-object":
		b.onReleaseObject(raw)
	case "move-object":
		b.onMoveObject(raw)
	case "set-simulation-mode":
		b.onSetSimulationMode(raw)
	case "ping":
		b.onPing(raw)
	default:
		b.log.Warn("unknown control message type", "type", kind)
	}
}

func (b *Broker) onSignal(raw []byte) {
	var in wire.InSignal
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	// Signal payloads (WebRTC offer/answer/ICE) are opaque to the server —
	// relayed to the rest of the room, never interpreted.
	b.hub.BroadcastRoom(b.roomID, wire.OutSignal{Type: "signal", From: b.id, Signal: in.Signal}, b.id)
}

func (b *Broker) onListAssets() {
	listing := b.hub.Assets.List()
	items := make([]wire.AssetListItem, 0, len(listing))
	for _, l := range listing {
		lods := make([]string, 0, len(l.LODs))
		for _, lod := range l.LODs {
			lods = append(lods, string(lod))
		}
		items = append(items, wire.AssetListItem{ID: l.AssetID, LODs: lods, HasNeRF: l.HasNeRF})
	}
	b.Enqueue(wire.OutAssetList{Type: "asset_list", Assets: items})
}

var validRenderModes = map[string]bool{
	"splat": true, "point": true, "mesh": true, "hybrid": true, "wireframe": true,
}

func (b *Broker) onSetRenderMode(raw []byte) {
	var in wire.InSetRenderMode
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	if !validRenderModes[in.Mode] {
		b.Enqueue(wire.OutNeRFError{Type: "nerf_error", Error: "invalid render mode: " + in.Mode})
		return
	}
	b.renderMode = in.Mode
}

func (b *Broker) onBandwidthMetrics(raw []byte) {
	var in wire.InBandwidthMetrics
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	b.lastClientBps = in.Metrics.Bandwidth
	b.lastClientReportAt = time.Now()
	b.bw.Sample(in.Metrics.Bandwidth)
	if b.metrics != nil {
		b.metrics.BandwidthEstimate.WithLabelValues(b.id).Observe(b.bw.Estimate())
	}
	if b.bw.Samples() >= b.bw.MinSamples() {
		b.Enqueue(wire.OutLODRecommendation{Type: "lod-recommendation", LOD: string(b.bw.Decide())})
	}
}

func (b *Broker) onHeadTracking(raw []byte) {
	var in wire.InHeadTracking
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	b.pose = foveation.Pose{
		Position: foveation.Vec3{X: in.Position[0], Y: in.Position[1], Z: in.Position[2]},
		YawRad:   in.Rotation[1],
		FOVDeg:   in.FOV,
		HasPose:  true,
	}
	b.hub.Rooms.UpdatePose(b.id, roomPose(in.Position, in.Rotation, in.Quaternion))
	b.hub.BroadcastRoom(b.roomID, wire.OutUserPosition{
		Type:       "user-position",
		UserID:     b.id,
		Position:   in.Position,
		Rotation:   in.Rotation,
		Quaternion: in.Quaternion,
	}, b.id)
}

func (b *Broker) onPositionUpdate(raw []byte) {
	var in wire.InPositionUpdate
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	b.hub.Rooms.UpdatePose(b.id, roomPose(in.Position, in.Rotation, in.Quaternion))
	b.hub.BroadcastRoom(b.roomID, wire.OutUserPosition{
		Type:       "user-position",
		UserID:     b.id,
		Position:   in.Position,
		Rotation:   in.Rotation,
		Quaternion: in.Quaternion,
	}, b.id)
}

func roomPose(position, rotation [3]float64, quaternion [4]float64) rooms.Pose {
	return rooms.Pose{Position: position, Rotation: rotation, Quaternion: quaternion}
}

func (b *Broker) onGetRoomObjects(raw []byte) {
	var in wire.InGetRoomObjects
	_ = json.Unmarshal(raw, &in)
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	list := b.hub.Objects.List(roomID)
	out := make([]wire.Object, 0, len(list))
	for _, o := range list {
		out = append(out, objectToWire(o))
	}
	b.Enqueue(wire.OutRoomObjects{Type: "room-objects", Objects: out})
}

func (b *Broker) onCreateObject(raw []byte) {
	var in wire.InCreateObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	b.hub.Objects.Create(roomID, in.ObjectData.Kind, in.ObjectData.Position, in.ObjectData.Rotation, in.ObjectData.Scale, in.ObjectData.Colour, b.id)
}

func (b *Broker) onUpdateObject(raw []byte) {
	var in wire.InUpdateObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}

	var position *[3]float64
	var rotation *[4]float64
	var scale *[3]float64
	var colour *string

	if v, ok := in.Updates["position"]; ok {
		if p, ok := decodeVec3(v); ok {
			position = &p
		}
	}
	if v, ok := in.Updates["rotation"]; ok {
		if r, ok := decodeVec4(v); ok {
			rotation = &r
		}
	}
	if v, ok := in.Updates["scale"]; ok {
		if s, ok := decodeVec3(v); ok {
			scale = &s
		}
	}
	if v, ok := in.Updates["colour"].(string); ok {
		colour = &v
	}

	if _, ok := b.hub.Objects.Update(roomID, in.ObjectID, b.id, position, rotation, scale, colour); !ok {
		b.log.Debug("update-object ignored: unknown object or owned by another client", "object_id", in.ObjectID)
	}
}

func (b *Broker) onDeleteObject(raw []byte) {
	var in wire.InDeleteObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	b.hub.Objects.Delete(roomID, in.ObjectID)
}

func (b *Broker) onGrabObject(raw []byte) {
	var in wire.InGrabObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	_, ok, _ := b.hub.Objects.Grab(roomID, in.ObjectID, b.id)
	outcome := "contended"
	if ok {
		outcome = "success"
	}
	if b.metrics != nil {
		b.metrics.ObjectGrabs.WithLabelValues(outcome).Inc()
	}
}

func (b *Broker) onReleaseObject(raw []byte) {
	var in wire.InReleaseObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	if b.hub.Objects.Release(roomID, in.ObjectID, b.id) && b.metrics != nil {
		b.metrics.ObjectReleases.WithLabelValues("explicit").Inc()
	}
}

func (b *Broker) onMoveObject(raw []byte) {
	var in wire.InMoveObject
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = b.roomID
	}
	if !b.hub.Objects.Move(roomID, in.ObjectID, b.id, in.Position, in.Rotation) {
		b.log.Debug("move-object ignored: unknown object or owned by another client", "object_id", in.ObjectID)
	}
}

func (b *Broker) onSetSimulationMode(raw []byte) {
	var in wire.InSetSimulationMode
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	if !in.Enabled {
		b.bw.SetForcedTier(nil)
		b.Enqueue(wire.OutSimulationModeChanged{Type: "simulation-mode-changed", Enabled: false})
		b.Enqueue(wire.OutLODRecommendation{Type: "lod-recommendation", LOD: string(b.bw.Decide())})
		return
	}
	// Simulation mode forces LOW: a deterministic, reproducible stream tier
	// for automated test harnesses, independent of whatever the EMA would
	// otherwise decide.
	lod := assets.LOW
	b.bw.SetForcedTier(&lod)
	b.Enqueue(wire.OutSimulationModeChanged{Type: "simulation-mode-changed", Enabled: true, LOD: string(lod)})
}

func (b *Broker) onPing(raw []byte) {
	var in wire.InPing
	_ = json.Unmarshal(raw, &in)
	b.Enqueue(wire.OutPong{Type: "pong", Timestamp: in.Timestamp})
}

func decodeVec3(v any) ([3]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return [3]float64{}, false
	}
	var out [3]float64
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return [3]float64{}, false
		}
		out[i] = f
	}
	return out, true
}

func decodeVec4(v any) ([4]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 4 {
		return [4]float64{}, false
	}
	var out [4]float64
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return [4]float64{}, false
		}
		out[i] = f
	}
	return out, true
}

func objectToWire(o objects.Object) wire.Object {
	w := wire.Object{
		ID:        o.ID,
		Kind:      o.Kind,
		Position:  o.Position,
		Rotation:  o.Rotation,
		Scale:     o.Scale,
		Colour:    o.Colour,
		CreatedBy: o.CreatedBy,
		CreatedAt: o.CreatedAt.UnixMilli(),
		UpdatedAt: o.UpdatedAt.UnixMilli(),
		OwnedBy:   o.OwnedBy,
	}
	if t := o.OwnershipExpiresAt; !t.IsZero() {
		w.OwnershipExpiresAt = t.UnixMilli()
	}
	return w
}
