package dualsense

// Output is one pending output report. Fields mirror the named bytes of the
// 64-byte DualSense output structure; everything unnamed stays zero.
type Output struct {
	OperatingMode   uint8
	PhysicalEffects uint8
	LightEffects    uint8

	MotorRight uint8
	MotorLeft  uint8

	MuteButtonLED uint8
	PowerSave     uint8

	RightTriggerEffect [TriggerEffectSize]uint8
	LeftTriggerEffect  [TriggerEffectSize]uint8

	LightbarControl uint8
	LightbarSetup   uint8
	LEDBrightness   uint8

	PlayerLEDs    uint8
	LightbarRed   uint8
	LightbarGreen uint8
	LightbarBlue  uint8
}

// MarshalReport encodes the output as a fixed-size, zero-padded report.
func (o *Output) MarshalReport() []byte {
	b := make([]byte, ReportSize)
	b[OutOffsetOperatingMode] = o.OperatingMode
	b[OutOffsetPhysicalEffect] = o.PhysicalEffects
	b[OutOffsetLightEffect] = o.LightEffects
	b[OutOffsetMotorRight] = o.MotorRight
	b[OutOffsetMotorLeft] = o.MotorLeft
	b[OutOffsetMuteButtonLED] = o.MuteButtonLED
	b[OutOffsetPowerSave] = o.PowerSave
	copy(b[OutOffsetRightTrigger:], o.RightTriggerEffect[:])
	copy(b[OutOffsetLeftTrigger:], o.LeftTriggerEffect[:])
	b[OutOffsetLightbarCtl] = o.LightbarControl
	b[OutOffsetLightbarSetup] = o.LightbarSetup
	b[OutOffsetLEDBrightness] = o.LEDBrightness
	b[OutOffsetPlayerLEDs] = o.PlayerLEDs
	b[OutOffsetLightbarRed] = o.LightbarRed
	b[OutOffsetLightbarGreen] = o.LightbarGreen
	b[OutOffsetLightbarBlue] = o.LightbarBlue
	return b
}
