package daemon

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"keyrx/internal/platform"
)

// rescanLoop polls for device arrival and removal. Readers exit on their
// own when a device vanishes; the rescan only has to open newcomers.
func (d *Daemon) rescanLoop() {
	defer d.wg.Done()
	defer d.crash.RecoverQuiet(map[string]string{"goroutine": "rescan"})

	tick := time.NewTicker(rescanInterval)
	defer tick.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-tick.C:
			if err := d.rescanDevices(); err != nil {
				d.log.Warn("device scan failed", "error", err)
			}
		}
	}
}

func (d *Daemon) rescanDevices() error {
	infos, err := d.backend.Discover()
	if err != nil {
		return err
	}

	d.devMu.Lock()
	defer d.devMu.Unlock()
	for _, info := range infos {
		if _, open := d.devices[info.Path]; open {
			continue
		}
		if !d.wantDevice(info.Name) {
			continue
		}
		dev, err := d.backend.Open(info, d.cfg.Devices.Grab)
		if err != nil {
			d.log.Warn("open device", "path", info.Path, "error", err)
			continue
		}
		ctx, cancel := context.WithCancel(d.ctx)
		d.devices[info.Path] = &attachedDevice{dev: dev, info: info, cancel: cancel}

		d.mu.Lock()
		d.engine.Attach(info.ID, info.Name)
		d.mu.Unlock()
		if err := d.db.TouchDevice(info.ID, info.Name, time.Now()); err != nil {
			d.log.Warn("record device", "error", err)
		}
		d.metrics.AttachedDevices.Inc()
		d.log.Info("device attached", "name", info.Name, "path", info.Path, "id", info.ID.String())

		d.wg.Add(1)
		go d.readDevice(ctx, dev, info)
	}
	return nil
}

// wantDevice applies the include/exclude name patterns. With no include
// patterns every keyboard matches.
func (d *Daemon) wantDevice(name string) bool {
	for _, pat := range d.cfg.Devices.ExcludePatterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return false
		}
	}
	if len(d.cfg.Devices.IncludePatterns) == 0 {
		return true
	}
	for _, pat := range d.cfg.Devices.IncludePatterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// readDevice pumps one device into the event queue until the device goes
// away or the daemon stops.
func (d *Daemon) readDevice(ctx context.Context, dev platform.Device, info platform.DeviceInfo) {
	defer d.wg.Done()
	defer d.crash.RecoverQuiet(map[string]string{"goroutine": "reader", "device": info.Name})

	for {
		ev, err := dev.Read()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				d.log.Info("device detached", "name", info.Name, "error", err)
			}
			d.detachDevice(info)
			return
		}
		d.enqueue(ev)
	}
}

// enqueue adds an event to the bounded queue. When the queue is full the
// oldest event is dropped so fresh input stays responsive.
func (d *Daemon) enqueue(ev platform.RawEvent) {
	select {
	case d.events <- ev:
		return
	default:
	}
	select {
	case <-d.events:
		d.metrics.RecordDrop()
		d.log.Warn("event queue full, dropping oldest event")
	default:
	}
	select {
	case d.events <- ev:
	default:
		d.metrics.RecordDrop()
	}
}

func (d *Daemon) detachDevice(info platform.DeviceInfo) {
	d.devMu.Lock()
	ad, ok := d.devices[info.Path]
	if ok {
		delete(d.devices, info.Path)
	}
	d.devMu.Unlock()
	if !ok {
		return
	}
	ad.cancel()
	ad.dev.Close()

	d.mu.Lock()
	out := d.engine.Detach(info.ID, nil)
	d.mu.Unlock()
	d.emitAll(out)
	d.metrics.AttachedDevices.Dec()
}

// attachedInfos snapshots the open devices for the control socket.
func (d *Daemon) attachedInfos() []platform.DeviceInfo {
	d.devMu.Lock()
	defer d.devMu.Unlock()
	infos := make([]platform.DeviceInfo, 0, len(d.devices))
	for _, ad := range d.devices {
		infos = append(infos, ad.info)
	}
	return infos
}
