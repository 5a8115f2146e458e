package frame

import (
	"testing"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Frame{
		{Kind: Request, MsgID: 42, Method: "echo", Payload: []byte("hello")},
		{Kind: Response, MsgID: 42, Status: int32(errs.Ok), Payload: []byte("world")},
		{Kind: OnewayRequest, Method: "fire_and_forget", Payload: nil},
		{Kind: PubMessage, Topic: "orders.created", Payload: []byte(`{"id":1}`)},
		{Kind: Request, MsgID: 1, Method: "empty_payload"},
	}

	for _, f := range cases {
		b, err := Encode(f)
		require.NoError(t, err)

		got, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, f.Kind, got.Kind)
		require.Equal(t, f.MsgID, got.MsgID)
		require.Equal(t, f.Status, got.Status)
		require.Equal(t, f.Method, got.Method)
		require.Equal(t, f.Topic, got.Topic)
		require.Equal(t, f.Payload, got.Payload)
	}
}

func TestEncodeStreamRoundTrip(t *testing.T) {
	f := &Frame{Kind: Request, MsgID: 7, Method: "sum", Payload: []byte{1, 2, 3}}

	b, err := EncodeStream(f)
	require.NoError(t, err)
	require.Greater(t, len(b), LengthPrefixSize)

	n := PeekStreamLength(b)
	body := b[LengthPrefixSize : LengthPrefixSize+int(n)]

	got, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, f.Method, got.Method)
	require.Equal(t, f.Payload, got.Payload)
}

func TestValidateRejectsOversizedMethod(t *testing.T) {
	f := &Frame{Kind: Request, Method: string(make([]byte, MaxMethodLen+1))}
	_, err := Encode(f)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Protocol))
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	f := &Frame{Kind: Request, Method: "m", Payload: []byte("payload")}
	b, err := Encode(f)
	require.NoError(t, err)

	_, err = Decode(b[:len(b)-1])
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Protocol))
}

func TestDecodeRejectsImpossibleKind(t *testing.T) {
	b := make([]byte, headerSize)
	b[0] = 0xFF
	_, err := Decode(b)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Protocol))
}
