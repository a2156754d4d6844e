// Command robot-info scans serial ports for SO-101 arms and prints what it
// finds: port, servo IDs, models, and current raw positions. It is a
// read-only diagnostic and never writes configuration or moves the arm.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/lerobot-ik/pkg/kinematics"
)

func main() {
	fmt.Println("🤖 LeRobot IK Port Scanner")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		os.Exit(1)
	}

	found := 0
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		if inspectPort(port) {
			found++
		}
	}

	fmt.Println()
	if found == 0 {
		fmt.Println("No SO-101 arms found.")
		fmt.Println("Make sure your arms are connected and powered on.")
		os.Exit(1)
	}
	fmt.Printf("Found %d arm(s). Configure them with:\n", found)
	fmt.Println("  lerobot-ik setup")
}

// inspectPort probes a single serial port and prints a servo table if an
// SO-101 arm answers on it.
func inspectPort(port string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return false
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, 1, int(kinematics.NumJoints))
	if err != nil || len(servos) == 0 {
		return false
	}

	sort.Slice(servos, func(i, j int) bool { return servos[i].ID < servos[j].ID })

	complete := isSOArm(servos)
	if complete {
		fmt.Printf("SO-101 arm on %s\n", port)
	} else {
		fmt.Printf("Partial arm on %s (%d of %d servos)\n", port, len(servos), kinematics.NumJoints)
	}

	fmt.Println("  ID  Joint          Model       Position")
	for _, s := range servos {
		joint := "?"
		if s.ID >= 1 && s.ID <= int(kinematics.NumJoints) {
			joint = kinematics.Joint(s.ID - 1).String()
		}

		servo := feetech.NewServo(bus, s.ID, s.Model)
		pos := "n/a"
		if p, err := servo.Position(ctx); err == nil {
			pos = fmt.Sprintf("%d", p)
		}
		fmt.Printf("  %-3d %-14s %-11v %s\n", s.ID, joint, s.Model, pos)
	}
	fmt.Println()

	return complete
}

// isSOArm reports whether the scan found the full ID 1-6 servo set.
func isSOArm(servos []feetech.FoundServo) bool {
	if len(servos) != int(kinematics.NumJoints) {
		return false
	}
	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= int(kinematics.NumJoints); i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}
