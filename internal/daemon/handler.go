package daemon

import (
	"context"
	"fmt"
	"time"

	"keyrx/internal/compiler"
	"keyrx/internal/ipc"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
	"keyrx/internal/sim"
	"keyrx/internal/store"
)

// handler returns the control-socket dispatcher. Requests that touch the
// engine take the engine lock; simulate runs on a throwaway engine and
// never does.
func (d *Daemon) handler() ipc.Handler {
	return ipc.HandlerFunc(func(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
		switch msg.Header.Type {
		case ipc.MsgStatusRequest:
			return d.handleStatus(msg)
		case ipc.MsgStateRequest:
			return d.handleState(msg)
		case ipc.MsgDevicesRequest:
			return d.handleDevices(msg)
		case ipc.MsgReloadRequest:
			return d.handleReload(msg)
		case ipc.MsgSimulateRequest:
			return d.handleSimulate(msg)
		case ipc.MsgShutdown:
			go d.Stop()
			return ipc.NewMessage(ipc.MsgPong, msg.Header.RequestID, nil), nil
		default:
			return errorMessage(msg, ipc.ErrInvalidRequest, fmt.Sprintf("unknown request type %#04x", msg.Header.Type))
		}
	})
}

func errorMessage(req *ipc.Message, code int, text string) (*ipc.Message, error) {
	return ipc.Encode(ipc.MsgError, req.Header.RequestID, ipc.ErrorResponse{Code: code, Message: text})
}

func reply(req *ipc.Message, msgType ipc.MessageType, body any) (*ipc.Message, error) {
	return ipc.Encode(msgType, req.Header.RequestID, body)
}

func (d *Daemon) handleStatus(msg *ipc.Message) (*ipc.Message, error) {
	srcPath, srcHash := d.sourceInfo()
	return reply(msg, ipc.MsgStatusResponse, ipc.StatusResponse{
		Version:         Version,
		StartedAt:       d.startedAt,
		UptimeSeconds:   int64(time.Since(d.startedAt).Seconds()),
		ProfileSource:   srcPath,
		SourceHash:      fmt.Sprintf("%x", srcHash),
		CompilerVersion: compiler.CompilerVersion,
		Devices:         len(d.attachedInfos()),
		EventsProcessed: d.metrics.EventsProcessed.Value(),
		EventsDropped:   d.metrics.EventsDropped.Value(),
	})
}

func (d *Daemon) handleState(msg *ipc.Message) (*ipc.Message, error) {
	d.mu.Lock()
	snap := d.engine.Snapshot()
	d.mu.Unlock()
	return reply(msg, ipc.MsgStateResponse, ipc.StateResponse{
		Modifiers: snap.Modifiers,
		Locks:     snap.Locks,
		Layers:    snap.Layers,
	})
}

func (d *Daemon) handleDevices(msg *ipc.Message) (*ipc.Message, error) {
	attached := map[runtime.DeviceID]bool{}
	for _, info := range d.attachedInfos() {
		attached[info.ID] = true
	}

	records, err := d.db.Devices()
	if err != nil {
		return errorMessage(msg, ipc.ErrInternalError, err.Error())
	}
	resp := ipc.DevicesResponse{Devices: make([]ipc.DeviceInfo, 0, len(records))}
	for _, rec := range records {
		id := runtime.DeviceID(rec.DeviceID)
		resp.Devices = append(resp.Devices, ipc.DeviceInfo{
			ID:       id.String(),
			Name:     rec.Name,
			LastSeen: rec.LastSeen,
			Attached: attached[id],
		})
	}
	return reply(msg, ipc.MsgDevicesResp, resp)
}

func (d *Daemon) handleReload(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.ReloadRequest
	if len(msg.Payload) > 0 {
		if err := ipc.Decode(msg, &req); err != nil {
			return errorMessage(msg, ipc.ErrInvalidRequest, err.Error())
		}
	}
	if req.Path != "" {
		d.srcMu.Lock()
		d.sourcePath = req.Path
		d.srcMu.Unlock()
	}
	if err := d.Reload(store.ReasonManual); err != nil {
		return reply(msg, ipc.MsgReloadResponse, ipc.ReloadResponse{Success: false, Error: err.Error()})
	}
	_, srcHash := d.sourceInfo()
	return reply(msg, ipc.MsgReloadResponse, ipc.ReloadResponse{
		Success:    true,
		SourceHash: fmt.Sprintf("%x", srcHash),
	})
}

func (d *Daemon) handleSimulate(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.SimulateRequest
	if err := ipc.Decode(msg, &req); err != nil {
		return errorMessage(msg, ipc.ErrInvalidRequest, err.Error())
	}

	var prof *profile.Profile
	if req.Config != "" {
		compiled, err := compiler.Compile(req.Config)
		if err != nil {
			return reply(msg, ipc.MsgSimulateResponse, ipc.SimulateResponse{Success: false, Error: err.Error()})
		}
		prof, err = profile.Load(compiled)
		if err != nil {
			return reply(msg, ipc.MsgSimulateResponse, ipc.SimulateResponse{Success: false, Error: err.Error()})
		}
	} else {
		d.mu.Lock()
		prof = d.engine.Profile()
		d.mu.Unlock()
	}

	cfg := runtime.DefaultConfig()
	cfg.DefaultThresholdMs = uint16(d.cfg.Engine.DefaultThresholdMs)
	res, err := sim.RunScript(prof, req.Script, cfg)
	if err != nil {
		return reply(msg, ipc.MsgSimulateResponse, ipc.SimulateResponse{Success: false, Error: err.Error()})
	}
	return reply(msg, ipc.MsgSimulateResponse, ipc.SimulateResponse{
		Success:    true,
		Transcript: res.Transcript(),
	})
}
