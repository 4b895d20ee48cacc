package dualsense

const (
	VendorID  = 0x054C
	ProductID = 0x0CE6
)

const (
	// HID interface and interrupt endpoints on the USB configuration.
	InterfaceNumber = 3
	EndpointIn      = 4
	EndpointOut     = 3

	// ReportSize is the fixed size of both input and output reports.
	ReportSize = 64
)

// Operating mode byte of the output report.
const (
	OpModeDS4Compat uint8 = 1 << 0
	OpModeDS5       uint8 = 1 << 1
)

// Physical effect control flags.
const (
	EffectEnableHaptics uint8 = 1<<0 | 1<<1
	EffectTriggerRight  uint8 = 1 << 2
	EffectTriggerLeft   uint8 = 1 << 3
)

// Light effect control flags.
const (
	LightMicMuteLEDEnable     uint8 = 1 << 0
	LightPowerSaveEnable      uint8 = 1 << 1
	LightLightbarEnable       uint8 = 1 << 2
	LightReleaseLEDs          uint8 = 1 << 3
	LightPlayerIndicatorEnable uint8 = 1 << 4
)

// Output report byte offsets.
const (
	OutOffsetOperatingMode  = 0
	OutOffsetPhysicalEffect = 1
	OutOffsetLightEffect    = 2
	OutOffsetMotorRight     = 3
	OutOffsetMotorLeft      = 4
	OutOffsetMuteButtonLED  = 9
	OutOffsetPowerSave      = 10
	OutOffsetRightTrigger   = 11 // 11-byte trigger effect block
	OutOffsetLeftTrigger    = 22 // 11-byte trigger effect block
	OutOffsetLightbarCtl    = 41
	OutOffsetLightbarSetup  = 42
	OutOffsetLEDBrightness  = 43
	OutOffsetPlayerLEDs     = 44
	OutOffsetLightbarRed    = 45
	OutOffsetLightbarGreen  = 46
	OutOffsetLightbarBlue   = 47
)

// TriggerEffectSize is the length of one adaptive trigger effect block.
const TriggerEffectSize = 11

// TouchStatusByte is the input-report byte whose high bit carries the
// touch-contact flag. The sense is inverted: bit 7 set means the pad is NOT
// touched. This is a hardware quirk, not a bug.
const TouchStatusByte = 33

// Touchpad raw dimensions of the input report's coordinate fields.
const (
	touchRawWidth  = 1920
	touchRawHeight = 1080
)

// iconPalette maps the numeric suffix of a controller icon to a lightbar
// color. Channels are normalized [0, 1].
var iconPalette = [][3]float64{
	{0.0, 1.0, 0.0},
	{0.0, 0.0, 1.0},
	{1.0, 0.0, 0.0},
	{1.0, 1.0, 0.0},
	{0.0, 1.0, 1.0},
	{1.0, 0.4, 0.0},
	{1.0, 0.0, 1.0},
}

// defaultLightbarColor is used when no icon index can be resolved.
var defaultLightbarColor = [3]float64{0.0, 0.0, 1.0}
