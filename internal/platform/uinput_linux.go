//go:build linux

package platform

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"keyrx/internal/keycode"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
)

// uinput ioctl requests, from linux/uinput.h.
const (
	uiSetEvbit   = 0x40045564
	uiSetKeybit  = 0x40045565
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup   = 0x405c5503
)

const (
	evSyn      = 0x00
	synReport  = 0
	busVirtual = 0x06
)

// Left-hand modifier evdev codes used to realize output flags.
const (
	codeLeftCtrl  = 29
	codeLeftShift = 42
	codeLeftAlt   = 56
	codeLeftMeta  = 125
)

// uinputSetup mirrors struct uinput_setup from linux/uinput.h.
type uinputSetup struct {
	ID           inputID
	Name         [80]byte
	FFEffectsMax uint32
}

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputInjector writes remapped key events to a virtual keyboard.
type uinputInjector struct {
	file *os.File
}

// NewInjector creates the virtual output keyboard. All catalog keys with
// an evdev mapping plus the modifier codes are enabled so any compiled
// profile can be played without re-creating the device.
func (b *evdevBackend) NewInjector() (Injector, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w (need the input group or root)", err)
	}
	fd := int(f.Fd())

	if err := unix.IoctlSetInt(fd, uiSetEvbit, evKey); err != nil {
		f.Close()
		return nil, fmt.Errorf("enable EV_KEY: %w", err)
	}
	enabled := map[uint16]bool{}
	enable := func(code uint16) error {
		if enabled[code] {
			return nil
		}
		enabled[code] = true
		return unix.IoctlSetInt(fd, uiSetKeybit, int(code))
	}
	for k := keycode.KeyCode(0); int(k) < keycode.Count(); k++ {
		code, ok := toEvdev(k)
		if !ok {
			continue
		}
		if err := enable(code); err != nil {
			f.Close()
			return nil, fmt.Errorf("enable key %d: %w", code, err)
		}
	}
	for _, code := range []uint16{codeLeftCtrl, codeLeftShift, codeLeftAlt, codeLeftMeta} {
		if err := enable(code); err != nil {
			f.Close()
			return nil, fmt.Errorf("enable key %d: %w", code, err)
		}
	}

	setup := uinputSetup{ID: inputID{BusType: busVirtual, Vendor: 0x6b72, Product: 0x7801, Version: 1}}
	copy(setup.Name[:], "keyrx virtual keyboard")
	if err := ioctlPtr(fd, uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		f.Close()
		return nil, fmt.Errorf("device setup: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("device create: %w", err)
	}

	// Give the input subsystem a moment to register the node before the
	// first event, otherwise early keys can be lost.
	time.Sleep(100 * time.Millisecond)
	return &uinputInjector{file: f}, nil
}

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Emit injects one output event, wrapping it in its modifier flags and
// honoring the requested pre-delay.
func (inj *uinputInjector) Emit(ev runtime.OutputEvent) error {
	if ev.DelayMs > 0 {
		time.Sleep(time.Duration(ev.DelayMs) * time.Millisecond)
	}
	code, ok := toEvdev(ev.Key)
	if !ok {
		return fmt.Errorf("no output mapping for key %s", ev.Key)
	}

	mods := flagCodes(ev.Flags)
	if ev.Press {
		for _, m := range mods {
			if err := inj.writeKey(m, 1); err != nil {
				return err
			}
		}
	}
	if err := inj.writeKey(code, boolVal(ev.Press)); err != nil {
		return err
	}
	if !ev.Press {
		for i := len(mods) - 1; i >= 0; i-- {
			if err := inj.writeKey(mods[i], 0); err != nil {
				return err
			}
		}
	}
	return inj.syn()
}

func flagCodes(flags uint8) []uint16 {
	var codes []uint16
	if flags&profile.FlagCtrl != 0 {
		codes = append(codes, codeLeftCtrl)
	}
	if flags&profile.FlagShift != 0 {
		codes = append(codes, codeLeftShift)
	}
	if flags&profile.FlagAlt != 0 {
		codes = append(codes, codeLeftAlt)
	}
	if flags&profile.FlagMeta != 0 {
		codes = append(codes, codeLeftMeta)
	}
	return codes
}

func boolVal(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (inj *uinputInjector) writeKey(code uint16, value int32) error {
	return inj.writeEvent(evKey, code, value)
}

func (inj *uinputInjector) syn() error {
	return inj.writeEvent(evSyn, synReport, 0)
}

func (inj *uinputInjector) writeEvent(evType, code uint16, value int32) error {
	var buf [inputEventSize]byte
	// The kernel stamps the time itself; zero timeval is fine.
	binary.LittleEndian.PutUint16(buf[16:18], evType)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	if _, err := inj.file.Write(buf[:]); err != nil {
		return fmt.Errorf("inject event: %w", err)
	}
	return nil
}

func (inj *uinputInjector) Close() error {
	_ = unix.IoctlSetInt(int(inj.file.Fd()), uiDevDestroy, 0)
	return inj.file.Close()
}
