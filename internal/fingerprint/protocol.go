package fingerprint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Commands and replies used by the terminal's TCP protocol.
const (
	cmdConnect       uint16 = 1000
	cmdExit          uint16 = 1001
	cmdEnableDevice  uint16 = 1002
	cmdAuth          uint16 = 1102
	cmdRegEvent      uint16 = 500
	cmdAckOK         uint16 = 2000
	cmdAckError      uint16 = 2001
	cmdAckData       uint16 = 2002
	cmdAckUnauth     uint16 = 2005
	eventFlagAttLog  uint32 = 1
	tcpMagic1        uint16 = 0x5050
	tcpMagic2        uint16 = 0x7D82
	ushrtMax                = 65535
	headerSize              = 8
	maxPacketPayload        = 64 << 10
)

var errBadMagic = errors.New("fingerprint: bad packet magic")

type packet struct {
	command   uint16
	checksum  uint16
	sessionID uint16
	replyID   uint16
	data      []byte
}

// checksum is the one's complement style sum over little-endian 16-bit words
// used by the terminal firmware.
func checksum(buf []byte) uint16 {
	var sum int
	for len(buf) > 1 {
		sum += int(binary.LittleEndian.Uint16(buf))
		buf = buf[2:]
		if sum > ushrtMax {
			sum -= ushrtMax
		}
	}
	if len(buf) == 1 {
		sum += int(buf[0])
	}
	for sum > ushrtMax {
		sum -= ushrtMax
	}
	sum = ^sum
	for sum < 0 {
		sum += ushrtMax
	}
	return uint16(sum)
}

// encodePacket frames a command with the TCP prefix.
func encodePacket(command, sessionID, replyID uint16, data []byte) []byte {
	body := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint16(body[0:], command)
	binary.LittleEndian.PutUint16(body[4:], sessionID)
	binary.LittleEndian.PutUint16(body[6:], replyID)
	copy(body[headerSize:], data)
	binary.LittleEndian.PutUint16(body[2:], checksum(body))

	frame := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint16(frame[0:], tcpMagic1)
	binary.LittleEndian.PutUint16(frame[2:], tcpMagic2)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(body)))
	return append(frame, body...)
}

// readPacket reads one TCP framed packet.
func readPacket(r io.Reader) (packet, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return packet{}, err
	}
	if binary.LittleEndian.Uint16(prefix[0:]) != tcpMagic1 || binary.LittleEndian.Uint16(prefix[2:]) != tcpMagic2 {
		return packet{}, errBadMagic
	}
	size := binary.LittleEndian.Uint32(prefix[4:])
	if size < headerSize || size > maxPacketPayload {
		return packet{}, fmt.Errorf("fingerprint: invalid packet size %d", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, err
	}
	return packet{
		command:   binary.LittleEndian.Uint16(body[0:]),
		checksum:  binary.LittleEndian.Uint16(body[2:]),
		sessionID: binary.LittleEndian.Uint16(body[4:]),
		replyID:   binary.LittleEndian.Uint16(body[6:]),
		data:      body[headerSize:],
	}, nil
}

// commKey derives the CMD_AUTH payload from the device password and the
// session id assigned on connect.
func commKey(key uint32, sessionID uint16, ticks byte) []byte {
	var k uint32
	for i := range 32 {
		if key&(1<<i) != 0 {
			k = k<<1 | 1
		} else {
			k <<= 1
		}
	}
	k += uint32(sessionID)

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], k)
	b[0] ^= 'Z'
	b[1] ^= 'K'
	b[2] ^= 'S'
	b[3] ^= 'O'
	// Swap the two 16-bit halves.
	b = [4]byte{b[2], b[3], b[0], b[1]}
	return []byte{b[0] ^ ticks, b[1] ^ ticks, ticks, b[3] ^ ticks}
}

// decodeAttendance parses the payload of a CMD_REG_EVENT attendance
// notification. Firmware variants use several record layouts that differ in
// the width of the user id and trailing fields.
func decodeAttendance(data []byte) ([]Event, error) {
	var events []Event
	for len(data) >= 10 {
		var (
			userID string
			rest   []byte
			used   int
		)
		switch {
		case len(data) == 10:
			userID = strconv.FormatUint(uint64(binary.LittleEndian.Uint16(data)), 10)
			rest, used = data[2:10], 10
		case len(data) == 12:
			userID = strconv.FormatUint(uint64(binary.LittleEndian.Uint32(data)), 10)
			rest, used = data[4:12], 12
		case len(data) == 14:
			userID = strconv.FormatUint(uint64(binary.LittleEndian.Uint16(data)), 10)
			rest, used = data[2:10], 14
		case len(data) == 32:
			userID = cString(data[:24])
			rest, used = data[24:32], 32
		case len(data) == 36:
			userID = cString(data[:24])
			rest, used = data[24:32], 36
		case len(data) == 37:
			userID = cString(data[:24])
			rest, used = data[24:32], 37
		case len(data) >= 52:
			userID = cString(data[:24])
			rest, used = data[24:32], 52
		default:
			return events, fmt.Errorf("fingerprint: unsupported attendance record length %d", len(data))
		}
		events = append(events, Event{
			UserID:    userID,
			Status:    rest[0],
			Punch:     rest[1],
			Timestamp: decodeTime(rest[2:8]),
		})
		data = data[used:]
	}
	return events, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

func decodeTime(b []byte) time.Time {
	if len(b) < 6 {
		return time.Time{}
	}
	return time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, time.Local)
}
