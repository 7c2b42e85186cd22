package fingerprint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestChecksum(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:], cmdConnect)
	binary.LittleEndian.PutUint16(buf[6:], ushrtMax-1)
	if got := checksum(buf); got != 64535 {
		t.Fatalf("checksum = %d, want 64535", got)
	}
	if got := checksum([]byte{0x01}); got != 65533 {
		t.Fatalf("odd length checksum = %d, want 65533", got)
	}
}

func TestEncodeReadPacketRoundTrip(t *testing.T) {
	frame := encodePacket(cmdRegEvent, 42, 7, []byte{1, 0, 0, 0})
	if binary.LittleEndian.Uint16(frame[0:]) != tcpMagic1 || binary.LittleEndian.Uint16(frame[2:]) != tcpMagic2 {
		t.Fatalf("missing magic prefix: % x", frame[:4])
	}
	pkt, err := readPacket(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if pkt.command != cmdRegEvent || pkt.sessionID != 42 || pkt.replyID != 7 {
		t.Fatalf("unexpected header %+v", pkt)
	}
	if !bytes.Equal(pkt.data, []byte{1, 0, 0, 0}) {
		t.Fatalf("unexpected data % x", pkt.data)
	}

	body := append([]byte(nil), frame[8:]...)
	binary.LittleEndian.PutUint16(body[2:], 0)
	if checksum(body) != pkt.checksum {
		t.Fatal("stored checksum does not match body")
	}
}

func TestReadPacketRejectsGarbage(t *testing.T) {
	if _, err := readPacket(bytes.NewReader(make([]byte, 16))); !errors.Is(err, errBadMagic) {
		t.Fatalf("expected bad magic, got %v", err)
	}
	frame := encodePacket(cmdAckOK, 1, 1, nil)
	binary.LittleEndian.PutUint32(frame[4:], 4)
	if _, err := readPacket(bytes.NewReader(frame)); err == nil {
		t.Fatal("expected short size to be rejected")
	}
}

func TestCommKey(t *testing.T) {
	tests := []struct {
		key     uint32
		session uint16
		want    []byte
	}{
		{0, 1, []byte{97, 125, 50, 121}},
		{123456, 42, []byte{38, 127, 50, 249}},
	}
	for _, tc := range tests {
		if got := commKey(tc.key, tc.session, 50); !bytes.Equal(got, tc.want) {
			t.Fatalf("commKey(%d, %d) = %v, want %v", tc.key, tc.session, got, tc.want)
		}
	}
}

func attendanceRecord(userID uint16, at time.Time) []byte {
	rec := make([]byte, 10)
	binary.LittleEndian.PutUint16(rec, userID)
	rec[2] = 1
	rec[3] = 0
	rec[4] = byte(at.Year() - 2000)
	rec[5] = byte(at.Month())
	rec[6] = byte(at.Day())
	rec[7] = byte(at.Hour())
	rec[8] = byte(at.Minute())
	rec[9] = byte(at.Second())
	return rec
}

func TestDecodeAttendance(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 15, 30, 0, time.Local)

	events, err := decodeAttendance(attendanceRecord(7, at))
	if err != nil {
		t.Fatalf("decode short record: %v", err)
	}
	if len(events) != 1 || events[0].UserID != "7" || !events[0].Timestamp.Equal(at) || events[0].Status != 1 {
		t.Fatalf("unexpected events %+v", events)
	}

	wide := make([]byte, 12)
	binary.LittleEndian.PutUint32(wide, 70000)
	copy(wide[4:], attendanceRecord(0, at)[2:])
	events, err = decodeAttendance(wide)
	if err != nil || len(events) != 1 || events[0].UserID != "70000" {
		t.Fatalf("unexpected wide decode %+v (%v)", events, err)
	}

	long := make([]byte, 32)
	copy(long, "1042")
	copy(long[24:], attendanceRecord(0, at)[2:])
	events, err = decodeAttendance(long)
	if err != nil || len(events) != 1 || events[0].UserID != "1042" {
		t.Fatalf("unexpected string id decode %+v (%v)", events, err)
	}

	if _, err := decodeAttendance(make([]byte, 11)); err == nil {
		t.Fatal("expected unsupported length error")
	}
	if events, err := decodeAttendance(nil); err != nil || len(events) != 0 {
		t.Fatalf("expected empty payload to decode to nothing, got %v (%v)", events, err)
	}
}
