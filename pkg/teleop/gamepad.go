package teleop

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Gamepad supplies controller axes, polled once per control cycle.
type Gamepad interface {
	Poll() (Axes, error)
	Close() error
}

// DefaultGamepadDevice is the first joystick under the Linux joystick API.
const DefaultGamepadDevice = "/dev/input/js0"

// Axis numbers follow the common xbox-style layout: left stick on 0/1,
// right stick on 2/3, trigger-driven gripper on 4.
const (
	axisLeftX = iota
	axisLeftY
	axisRightX
	axisRightY
	axisGripper
)

const (
	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80
)

// jsEvent mirrors struct js_event from linux/joystick.h.
type jsEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// Joystick reads the Linux joystick device and keeps the latest axis
// values for polling. Events are drained by a background reader so a quiet
// stick never blocks the control loop.
type Joystick struct {
	f    *os.File
	mu   sync.Mutex
	axes Axes
	err  error
	done chan struct{}
}

// OpenJoystick opens a joystick device and starts draining its events.
func OpenJoystick(device string) (*Joystick, error) {
	if device == "" {
		device = DefaultGamepadDevice
	}
	f, err := os.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open gamepad: %w", err)
	}
	j := &Joystick{f: f, done: make(chan struct{})}
	go j.read()
	return j, nil
}

func (j *Joystick) read() {
	defer close(j.done)
	for {
		var ev jsEvent
		if err := binary.Read(j.f, binary.LittleEndian, &ev); err != nil {
			j.mu.Lock()
			if err != io.EOF {
				j.err = fmt.Errorf("read gamepad: %w", err)
			} else {
				j.err = fmt.Errorf("gamepad disconnected")
			}
			j.mu.Unlock()
			return
		}
		if ev.Type&^jsEventInit != jsEventAxis {
			continue
		}
		v := float64(ev.Value) / 32767.0
		if v < -1 {
			v = -1
		}
		j.mu.Lock()
		switch ev.Number {
		case axisLeftX:
			j.axes.LeftX = v
		case axisLeftY:
			j.axes.LeftY = v
		case axisRightX:
			j.axes.RightX = v
		case axisRightY:
			j.axes.RightY = v
		case axisGripper:
			j.axes.Gripper = v
		}
		j.mu.Unlock()
	}
}

// Poll returns the most recent axis values. After a device error every
// poll fails until the joystick is reopened.
func (j *Joystick) Poll() (Axes, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return Axes{}, j.err
	}
	return j.axes, nil
}

// Close stops the reader and releases the device.
func (j *Joystick) Close() error {
	err := j.f.Close()
	<-j.done
	return err
}
