// File: driver/codec.go
// Author: momentics <momentics@gmail.com>
//
// CBOR encoding for UDP data frames and the cnc.dat descriptor. Core
// deterministic encoding keeps identical frames byte-identical.

package driver

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("driver: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("driver: CBOR decoder initialization failed: " + err.Error())
	}
}

// dataFrame is one UDP datagram. Integer keys keep the header small.
type dataFrame struct {
	SessionID int32  `cbor:"1,keyasint"`
	StreamID  int32  `cbor:"2,keyasint"`
	Position  int64  `cbor:"3,keyasint"`
	Payload   []byte `cbor:"4,keyasint"`
}

func encodeFrame(f *dataFrame) ([]byte, error) {
	return encMode.Marshal(f)
}

func decodeFrame(b []byte) (dataFrame, error) {
	var f dataFrame
	err := decMode.Unmarshal(b, &f)
	return f, err
}
