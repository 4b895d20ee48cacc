package evdev

// Event types and codes from linux/input-event-codes.h, limited to what
// game-controller devices report.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvAbs uint16 = 0x03
)

const (
	AbsX  uint16 = 0x00
	AbsY  uint16 = 0x01
	AbsZ  uint16 = 0x02
	AbsRX uint16 = 0x03
	AbsRY uint16 = 0x04
	AbsRZ uint16 = 0x05

	AbsHat0X uint16 = 0x10
	AbsHat0Y uint16 = 0x11

	AbsMtSlot       uint16 = 0x2F
	AbsMtPositionX  uint16 = 0x35
	AbsMtPositionY  uint16 = 0x36
	AbsMtTrackingID uint16 = 0x39

	absCnt = 0x40
)

const (
	BtnLeft  uint16 = 0x110
	BtnTouch uint16 = 0x14A

	BtnSouth  uint16 = 0x130 // 304
	BtnEast   uint16 = 0x131
	BtnNorth  uint16 = 0x133
	BtnWest   uint16 = 0x134
	BtnTL     uint16 = 0x136
	BtnTR     uint16 = 0x137
	BtnSelect uint16 = 0x13A
	BtnStart  uint16 = 0x13B
	BtnMode   uint16 = 0x13C
	BtnThumbL uint16 = 0x13D
	BtnThumbR uint16 = 0x13E
)
