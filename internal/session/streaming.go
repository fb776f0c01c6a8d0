package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streamxr/core/internal/assets"
	"github.com/streamxr/core/internal/foveation"
	"github.com/streamxr/core/internal/wire"
)

// onRequestAsset implements the asset streaming protocol: decide
// the LOD, fetch bytes, then stream metadata + chunk/binary pairs + complete.
func (b *Broker) onRequestAsset(raw []byte) {
	var in wire.InRequestAsset
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	lod, skip := b.resolveLOD(in)
	if skip {
		b.Enqueue(wire.OutAssetSkipped{Type: "asset_skipped", AssetID: in.AssetID, Reason: "foveated_skip"})
		return
	}

	data, served, err := b.hub.Assets.Get(context.Background(), in.AssetID, lod)
	if err != nil {
		b.Enqueue(wire.OutAssetError{Type: "asset_error", AssetID: in.AssetID, Error: err.Error()})
		return
	}

	start := time.Now()
	if b.streamChunks(in.AssetID, string(served), data, 0, false) {
		b.recordServerBandwidthSample(len(data), time.Since(start))
	}
}

// clientReportFreshness bounds how recent a client-reported bandwidth-metrics
// sample must be to count as "concurrently available" for blending with a
// just-measured server-side sample; client reports arrive roughly every 2s.
const clientReportFreshness = 2 * time.Second

// recordServerBandwidthSample feeds C3 the bytes/elapsed measurement from a
// just-completed asset transfer, blending it 50/50 with the most recent
// client-reported sample when one arrived within clientReportFreshness.
func (b *Broker) recordServerBandwidthSample(totalBytes int, elapsed time.Duration) {
	elapsedMs := float64(elapsed.Milliseconds())
	if elapsedMs <= 0 {
		elapsedMs = 1
	}
	serverBps := float64(totalBytes) / elapsedMs * 1000

	if !b.lastClientReportAt.IsZero() && time.Since(b.lastClientReportAt) <= clientReportFreshness {
		b.bw.SampleBlended(serverBps, b.lastClientBps)
	} else {
		b.bw.Sample(serverBps)
	}
}

// resolveLOD picks the LOD to serve: foveated classification first when a
// head pose is known and the request carries a position, bandwidth
// estimation otherwise. An explicit lod on
// the request always wins outright.
func (b *Broker) resolveLOD(in wire.InRequestAsset) (assets.LOD, bool) {
	if in.LOD != "" {
		return assets.LOD(in.LOD), false
	}

	if in.Position != nil && b.pose.HasPose {
		pos := foveation.Vec3{X: in.Position[0], Y: in.Position[1], Z: in.Position[2]}
		switch foveation.Classify(b.pose, pos) {
		case foveation.DecisionSkip:
			return "", true
		case foveation.DecisionHigh:
			if b.metrics != nil {
				b.metrics.LODDecisions.WithLabelValues(string(assets.HIGH), "foveation").Inc()
			}
			return assets.HIGH, false
		case foveation.DecisionLow:
			if b.metrics != nil {
				b.metrics.LODDecisions.WithLabelValues(string(assets.LOW), "foveation").Inc()
			}
			return assets.LOW, false
		case foveation.DecisionNoOpinion:
			// fall through to bandwidth
		}
	}

	lod := b.bw.Decide()
	source := "bandwidth"
	if b.bw.ForcedTier() != nil {
		source = "forced"
	}
	if b.metrics != nil {
		b.metrics.LODDecisions.WithLabelValues(string(lod), source).Inc()
	}
	return lod, false
}

// streamChunks drives the metadata/chunk/complete sequence shared by asset
// and NeRF streaming. throttleEvery > 0 inserts a 1ms pause every N chunks
// (the NeRF throttle option); nerf selects the message kinds. Returns false
// if the stream was cut short by a saturated outbound queue.
func (b *Broker) streamChunks(assetID, lod string, data []byte, throttleEvery int, nerf bool) bool {
	chunkSize := b.cfg.Stream.ChunkSize
	total := len(data)
	chunks := total / chunkSize
	if total%chunkSize != 0 {
		chunks++
	}

	if nerf {
		b.Enqueue(wire.OutNeRFMetadata{Type: "nerf_metadata", AssetID: assetID, Format: lod, Size: total, Chunks: chunks})
	} else {
		b.Enqueue(wire.OutAssetMetadata{Type: "asset_metadata", AssetID: assetID, LOD: lod, Size: total, Chunks: chunks})
	}

	for i := 0; i < chunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > total {
			end = total
		}
		payload := data[start:end]

		var header any
		if nerf {
			header = wire.OutNeRFChunk{Type: "nerf_chunk", AssetID: assetID, ChunkIndex: i, TotalChunks: chunks, Offset: start, Size: len(payload)}
		} else {
			header = wire.OutAssetChunk{Type: "asset_chunk", AssetID: assetID, ChunkIndex: i, TotalChunks: chunks}
		}

		if !b.enqueuePair(header, payload) {
			// Outbound queue saturated: the Hub's broadcast path closes
			// sessions itself, but a self-originated stream must close here
			// too — the slow-session policy applies uniformly.
			b.Close()
			return false
		}

		if b.metrics != nil {
			b.metrics.AssetChunksSent.WithLabelValues(lod).Inc()
			b.metrics.AssetBytesStreamed.WithLabelValues(lod).Add(float64(len(payload)))
		}

		if throttleEvery > 0 && (i+1)%throttleEvery == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	if nerf {
		b.Enqueue(wire.OutNeRFComplete{Type: "nerf_complete", AssetID: assetID, TotalSize: total, ChunksTransferred: chunks})
	} else {
		b.Enqueue(wire.OutAssetComplete{Type: "asset_complete", AssetID: assetID})
	}
	return true
}

// onRequestNeRF implements the NeRF streaming protocol: the same shape as
// asset streaming, with an optional chunk-pacing throttle.
func (b *Broker) onRequestNeRF(raw []byte) {
	var in wire.InRequestNeRF
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}

	data, format, ok := b.hub.Assets.GetNeRF(in.AssetID)
	if !ok {
		b.Enqueue(wire.OutNeRFError{Type: "nerf_error", AssetID: in.AssetID, Error: "no NeRF data for asset"})
		return
	}

	throttleEvery := 0
	if in.Options != nil && in.Options.Throttle {
		throttleEvery = b.cfg.Stream.NeRFThrottleEvery
	}

	b.streamChunks(in.AssetID, string(format), data, throttleEvery, true)
}
