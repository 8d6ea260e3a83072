package progress

import "strconv"

const ESC = 0x1b

var CSI = []byte{ESC, '['}

// Cursor Up
func CUU(n uint8) []byte { return csi(n, 'A') }

// Erase in Display, 0 clears from the cursor to the end of the screen.
func ED(n uint8) []byte { return csi(n, 'J') }

func csi(n uint8, i byte) []byte {
	buf := make([]byte, 0, 6)
	buf = append(buf, CSI...)
	buf = strconv.AppendUint(buf, uint64(n), 10)
	return append(buf, i)
}
