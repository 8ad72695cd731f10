//go:build linux

package platform

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"keyrx/internal/keycode"
	"keyrx/internal/runtime"
)

// EVIOCGRAB ioctl request: one int argument, 'E' type, number 0x90.
const eviocgrab = 0x40044590

// inputEventSize is sizeof(struct input_event) on 64-bit Linux: two 8-byte
// timeval words, type, code, value.
const inputEventSize = 24

const (
	evKey    = 0x01
	valueUp  = 0
	valueRep = 2
)

// evdevBackend discovers and reads keyboards through /dev/input.
type evdevBackend struct{}

// NewBackend returns the Linux evdev backend.
func NewBackend() (Backend, error) {
	return &evdevBackend{}, nil
}

// Discover scans /proc/bus/input/devices for handlers with key
// capabilities, the same source udev uses.
func (b *evdevBackend) Discover() ([]DeviceInfo, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, fmt.Errorf("scan input devices: %w", err)
	}
	defer f.Close()

	var infos []DeviceInfo
	var name, handler, uniq string
	var vendor, product uint16
	isKeyboard := false

	flush := func() {
		if isKeyboard && handler != "" {
			infos = append(infos, deviceInfo(handler, name, uniq, vendor, product))
		}
		name, handler, uniq = "", "", ""
		vendor, product = 0, 0
		isKeyboard = false
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "I: "):
			for _, field := range strings.Fields(line[3:]) {
				if v, ok := strings.CutPrefix(field, "Vendor="); ok {
					n, _ := strconv.ParseUint(v, 16, 16)
					vendor = uint16(n)
				}
				if v, ok := strings.CutPrefix(field, "Product="); ok {
					n, _ := strconv.ParseUint(v, 16, 16)
					product = uint16(n)
				}
			}
		case strings.HasPrefix(line, "N: Name="):
			name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "U: Uniq="):
			uniq = strings.TrimPrefix(line, "U: Uniq=")
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// A keyboard advertises a wide KEY bitmap; pointers and
			// buttons report only a few bits.
			isKeyboard = len(strings.TrimPrefix(line, "B: KEY=")) > 24
		case line == "":
			flush()
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

func deviceInfo(path, name, uniq string, vendor, product uint16) DeviceInfo {
	var id runtime.DeviceID
	if uniq != "" {
		id = runtime.DeriveDeviceID(uniq)
	} else {
		id = runtime.FallbackDeviceID(vendor, product, path)
	}
	return DeviceInfo{Path: path, Name: name, ID: id}
}

// evdevDevice is one open /dev/input/eventN node.
type evdevDevice struct {
	info    DeviceInfo
	file    *os.File
	grabbed bool
	buf     [inputEventSize]byte
}

// Open opens the device node, optionally grabbing it exclusively.
func (b *evdevBackend) Open(info DeviceInfo, grab bool) (Device, error) {
	f, err := os.OpenFile(info.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w (need the input group or root)", info.Path, err)
	}
	d := &evdevDevice{info: info, file: f}
	if grab {
		if err := unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1); err != nil {
			f.Close()
			return nil, fmt.Errorf("grab %s: %w", info.Path, err)
		}
		d.grabbed = true
	}
	return d, nil
}

func (d *evdevDevice) Info() DeviceInfo { return d.info }

// Read blocks for the next key edge. Repeats (value 2) are delivered as
// presses; the engine ignores repeats on non-idle keys itself.
func (d *evdevDevice) Read() (RawEvent, error) {
	for {
		if _, err := d.file.Read(d.buf[:]); err != nil {
			return RawEvent{}, err
		}
		evType := binary.LittleEndian.Uint16(d.buf[16:18])
		if evType != evKey {
			continue
		}
		code := binary.LittleEndian.Uint16(d.buf[18:20])
		value := int32(binary.LittleEndian.Uint32(d.buf[20:24]))
		if value == valueRep {
			value = 1
		}

		key := fromEvdev(code)
		if key == keycode.None {
			continue
		}

		return RawEvent{
			Device: d.info.ID,
			Event:  runtime.KeyEvent{Key: key, Press: value != valueUp},
			TimeUs: MonotonicUs(),
		}, nil
	}
}

func (d *evdevDevice) Close() error {
	if d.grabbed {
		_ = unix.IoctlSetInt(int(d.file.Fd()), eviocgrab, 0)
	}
	return d.file.Close()
}
