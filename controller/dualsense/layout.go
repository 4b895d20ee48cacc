package dualsense

import (
	"math/bits"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/hidreport"
)

// physicalButtons lists the packed button bitfield in physical bit order.
// Zero entries are unassigned physical bits (the two trigger click bits whose
// purpose is unclear, possibly tied to the adaptive triggers).
var physicalButtons = [...]controller.Buttons{
	controller.ButtonX,
	controller.ButtonA,
	controller.ButtonB,
	controller.ButtonY,
	controller.ButtonLB,
	controller.ButtonRB,
	0,
	0,
	controller.ButtonBack,
	controller.ButtonStart,
	controller.ButtonStickPress,
	controller.ButtonRPad,
	controller.ButtonC,
	controller.ButtonCPadPress,
}

// newDecoder builds the immutable field-layout table for the DualSense USB
// input report. Byte offsets include the leading report ID byte.
func newDecoder() *hidreport.Decoder {
	d := &hidreport.Decoder{PacketSize: ReportSize}

	// The dpad is a hat switch in the low nibble of the button byte.
	d.Axes[hidreport.AxisLPadX] = hidreport.AxisData{
		Mode: hidreport.ModeHatswitch, ByteOffset: 8, SizeBits: 4,
		Button: controller.ButtonLPad | controller.ButtonLPadTouch,
	}

	d.Axes[hidreport.AxisStickX] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 1, SizeBits: 8,
		Scale: 1.0, Offset: -127.5, ClampMax: 257, Deadzone: 10,
	}
	d.Axes[hidreport.AxisStickY] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 2, SizeBits: 8,
		Scale: -1.0, Offset: 127.5, ClampMax: 257, Deadzone: 10,
	}
	d.Axes[hidreport.AxisRPadX] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 3, SizeBits: 8,
		Scale: 1.0, Offset: -127.5, ClampMax: 257, Deadzone: 10,
		Button: controller.ButtonRPadTouch,
	}
	d.Axes[hidreport.AxisRPadY] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 4, SizeBits: 8,
		Scale: -1.0, Offset: 127.5, ClampMax: 257, Deadzone: 10,
		Button: controller.ButtonRPadTouch,
	}

	d.Axes[hidreport.AxisLTrig] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 5, SizeBits: 8,
		Scale: 1.0, ClampMax: controller.TriggerMax, Deadzone: 10,
	}
	d.Axes[hidreport.AxisRTrig] = hidreport.AxisData{
		Mode: hidreport.ModeAxis, ByteOffset: 6, SizeBits: 8,
		Scale: 1.0, ClampMax: controller.TriggerMax, Deadzone: 10,
	}

	// Orientation: 16-bit signed fields, stored raw.
	d.Axes[hidreport.AxisGPitch] = hidreport.AxisData{Mode: hidreport.ModeAccel, ByteOffset: 16, SizeBits: 16}
	d.Axes[hidreport.AxisGYaw] = hidreport.AxisData{Mode: hidreport.ModeAccel, ByteOffset: 18, SizeBits: 16}
	d.Axes[hidreport.AxisGRoll] = hidreport.AxisData{Mode: hidreport.ModeAccel, ByteOffset: 20, SizeBits: 16}
	d.Axes[hidreport.AxisQ2] = hidreport.AxisData{Mode: hidreport.ModeGyro, ByteOffset: 22, SizeBits: 16}
	d.Axes[hidreport.AxisQ3] = hidreport.AxisData{Mode: hidreport.ModeGyro, ByteOffset: 24, SizeBits: 16}
	d.Axes[hidreport.AxisQ1] = hidreport.AxisData{Mode: hidreport.ModeGyro, ByteOffset: 26, SizeBits: 16}

	// Touch coordinates: 12-bit packed pair, Y starts mid-byte.
	d.Axes[hidreport.AxisCPadX] = hidreport.AxisData{
		Mode: hidreport.ModeTouchpad, ByteOffset: 34, SizeBits: 12,
		Scale: 1.0, ClampMax: touchRawWidth,
	}
	d.Axes[hidreport.AxisCPadY] = hidreport.AxisData{
		Mode: hidreport.ModeTouchpad, ByteOffset: 35, BitOffset: 4, SizeBits: 12,
		Scale: -1.0, ClampMax: touchRawHeight,
	}

	d.Buttons = hidreport.ButtonData{
		Enabled: true, ByteOffset: 8, BitOffset: 4, Count: 14,
	}
	for i := range d.Buttons.Map {
		d.Buttons.Map[i] = hidreport.ButtonNone
	}
	for i, b := range physicalButtons {
		if b != 0 {
			d.Buttons.Map[i] = uint8(bits.TrailingZeros32(uint32(b)))
		}
	}

	return d
}
