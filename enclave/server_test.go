package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/auctioncontract/core"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

func account(b byte) core.AccountID {
	var id core.AccountID
	id[core.AccountIDLength-1] = b
	return id
}

func newTestServer(t *testing.T) *EnclaveServer {
	t.Helper()
	registry, err := NewContractRegistry()
	assert.NoError(t, err)

	km, err := NewKeyManager()
	assert.NoError(t, err)

	s := NewEnclaveServer(defaultVsockPort, registry)
	s.keyManager = km
	s.getAttester = func() (EnclaveAttester, error) { return CreateMockEnclave(t), nil }
	return s
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	assert.NoError(t, err)
	return data
}

func placeBid(t *testing.T, s *EnclaveServer, from byte, value uint32) enclaveapi.CommandResponse {
	t.Helper()
	origin := account(from)
	resp := s.handleRequest(mustJSON(t, enclaveapi.CommandEnvelope{
		Type:       enclaveapi.TypeCommand,
		ContractID: core.AuctionHouse,
		Origin:     &origin,
		Command:    mustJSON(t, core.Command{PlaceBid: &core.PlaceBid{Value: value}}),
	}))
	cmdResp, ok := resp.(enclaveapi.CommandResponse)
	assert.True(t, ok)
	return cmdResp
}

func queryWinner(t *testing.T, s *EnclaveServer) *core.AccountID {
	t.Helper()
	resp := s.handleRequest(mustJSON(t, enclaveapi.QueryEnvelope{
		Type:       enclaveapi.TypeQuery,
		ContractID: core.AuctionHouse,
		Request:    json.RawMessage(`{"GetWinner":{}}`),
	}))
	queryResp, ok := resp.(enclaveapi.QueryResponse)
	assert.True(t, ok)
	assert.True(t, queryResp.Success)

	var winner core.Response
	assert.NoError(t, json.Unmarshal(queryResp.Response, &winner))
	assert.NotNil(t, winner.GetWinner)
	return winner.GetWinner.Winner
}

func TestHandleRequest_Ping(t *testing.T) {
	s := newTestServer(t)

	resp, ok := s.handleRequest([]byte(`{"type":"ping"}`)).(map[string]any)
	assert.True(t, ok)
	check.Equal(t, "pong", resp["type"])
	contractIDs, ok := resp["contracts"].([]core.ContractID)
	assert.True(t, ok)
	check.Equal(t, []core.ContractID{core.AuctionHouse}, contractIDs)
}

func TestHandleRequest_BidsAndWinner(t *testing.T) {
	s := newTestServer(t)

	check.Nil(t, queryWinner(t, s))

	for _, step := range []struct {
		from  byte
		value uint32
	}{{1, 10}, {2, 15}, {1, 12}, {2, 15}} {
		resp := placeBid(t, s, step.from, step.value)
		check.True(t, resp.Success)
		check.Equal(t, core.StatusOk, resp.Status)
		check.NotEqual(t, "", resp.RequestID)
	}

	winner := queryWinner(t, s)
	assert.NotNil(t, winner)
	check.Equal(t, account(2), *winner)
}

func TestHandleRequest_EncryptedCommand(t *testing.T) {
	s := newTestServer(t)

	encrypted, err := EncryptPayload([]byte(`{"PlaceBid":{"value":77}}`), s.keyManager.PublicKey, HashAlgorithmSHA256)
	assert.NoError(t, err)

	origin := account(7)
	resp, ok := s.handleRequest(mustJSON(t, enclaveapi.CommandEnvelope{
		Type:             enclaveapi.TypeCommand,
		RequestID:        "req-1",
		ContractID:       core.AuctionHouse,
		Origin:           &origin,
		EncryptedCommand: encrypted,
	})).(enclaveapi.CommandResponse)
	assert.True(t, ok)
	check.True(t, resp.Success)
	check.Equal(t, "req-1", resp.RequestID)

	winner := queryWinner(t, s)
	assert.NotNil(t, winner)
	check.Equal(t, origin, *winner)
}

func TestHandleRequest_RejectedCommands(t *testing.T) {
	s := newTestServer(t)
	origin := account(1)

	otherKey, err := NewKeyManager()
	assert.NoError(t, err)
	foreign, err := EncryptPayload([]byte(`{"PlaceBid":{"value":1}}`), otherKey.PublicKey, HashAlgorithmSHA256)
	assert.NoError(t, err)

	testCases := []struct {
		name   string
		env    enclaveapi.CommandEnvelope
		status core.TransactionStatus
	}{
		{
			name:   "missing origin",
			env:    enclaveapi.CommandEnvelope{ContractID: core.AuctionHouse, Command: json.RawMessage(`{"PlaceBid":{"value":1}}`)},
			status: core.StatusBadCommand,
		},
		{
			name:   "empty command",
			env:    enclaveapi.CommandEnvelope{ContractID: core.AuctionHouse, Origin: &origin},
			status: core.StatusBadCommand,
		},
		{
			name:   "unknown command",
			env:    enclaveapi.CommandEnvelope{ContractID: core.AuctionHouse, Origin: &origin, Command: json.RawMessage(`{"Withdraw":{}}`)},
			status: core.StatusBadCommand,
		},
		{
			name:   "unknown contract",
			env:    enclaveapi.CommandEnvelope{ContractID: 42, Origin: &origin, Command: json.RawMessage(`{"PlaceBid":{"value":1}}`)},
			status: core.StatusBadContract,
		},
		{
			name:   "encrypted for another enclave",
			env:    enclaveapi.CommandEnvelope{ContractID: core.AuctionHouse, Origin: &origin, EncryptedCommand: foreign},
			status: core.StatusDecryptionFailed,
		},
		{
			name: "both plain and encrypted",
			env: enclaveapi.CommandEnvelope{
				ContractID: core.AuctionHouse, Origin: &origin,
				Command: json.RawMessage(`{"PlaceBid":{"value":1}}`), EncryptedCommand: foreign,
			},
			status: core.StatusBadCommand,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.env.Type = enclaveapi.TypeCommand
			resp, ok := s.handleRequest(mustJSON(t, tc.env)).(enclaveapi.CommandResponse)
			assert.True(t, ok)
			check.False(t, resp.Success)
			check.Equal(t, tc.status, resp.Status)
			check.NotEqual(t, "", resp.Message)
		})
	}

	check.Nil(t, queryWinner(t, s))
}

func TestHandleRequest_QueryUnknownContract(t *testing.T) {
	s := newTestServer(t)

	resp, ok := s.handleRequest([]byte(`{"type":"query","contract_id":3,"request":{"GetWinner":{}}}`)).(enclaveapi.QueryResponse)
	assert.True(t, ok)
	check.False(t, resp.Success)
	check.NotEqual(t, "", resp.Message)
}

func TestHandleRequest_StateAttestation(t *testing.T) {
	s := newTestServer(t)
	placeBid(t, s, 1, 5)

	expected, err := s.registry.StateHash(core.AuctionHouse)
	assert.NoError(t, err)

	resp, ok := s.handleRequest([]byte(`{"type":"state_attestation","contract_id":5}`)).(enclaveapi.StateAttestationResponse)
	assert.True(t, ok)
	assert.True(t, resp.Success)
	check.Equal(t, expected, resp.StateHash)

	coseBytes, err := resp.AttestationCOSEBase64.Decode()
	assert.NoError(t, err)
	doc, err := coseBytes.ParseStateAttestation()
	assert.NoError(t, err)
	check.Equal(t, expected, doc.UserData.StateHash)
}

func TestHandleRequest_StateAttestationFailures(t *testing.T) {
	s := newTestServer(t)

	resp, ok := s.handleRequest([]byte(`{"type":"state_attestation","contract_id":9}`)).(enclaveapi.StateAttestationResponse)
	assert.True(t, ok)
	check.False(t, resp.Success)

	s.getAttester = func() (EnclaveAttester, error) { return CreateFailingEnclave(t), nil }
	resp, ok = s.handleRequest([]byte(`{"type":"state_attestation","contract_id":5}`)).(enclaveapi.StateAttestationResponse)
	assert.True(t, ok)
	check.False(t, resp.Success)
	check.NotEqual(t, "", resp.StateHash)

	s.getAttester = func() (EnclaveAttester, error) { return nil, fmt.Errorf("NSM not available") }
	_, ok = s.handleRequest([]byte(`{"type":"state_attestation","contract_id":5}`)).(enclaveapi.ErrorResponse)
	check.True(t, ok)
}

func TestHandleRequest_KeyRequest(t *testing.T) {
	s := newTestServer(t)

	resp, ok := s.handleRequest([]byte(`{"type":"key_request"}`)).(*enclaveapi.KeyResponse)
	assert.True(t, ok)
	expected, _ := s.keyManager.PublicKeyPEM()
	check.Equal(t, expected, resp.PublicKey)
}

func TestHandleRequest_Malformed(t *testing.T) {
	s := newTestServer(t)

	testCases := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"unknown type", `{"type":"auction_request"}`},
		{"bad command envelope", `{"type":"command","contract_id":"five"}`},
		{"bad query envelope", `{"type":"query","origin":"0x12"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, ok := s.handleRequest([]byte(tc.data)).(enclaveapi.ErrorResponse)
			assert.True(t, ok)
			check.Equal(t, "error", resp.Type)
		})
	}
}

func TestHandleConnection(t *testing.T) {
	s := newTestServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		s.handleConnection(conn)
	}()

	conn, err := net.Dial("tcp", listener.Addr().String())
	assert.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"type":"query","contract_id":5,"request":{"GetWinner":{}}}`))
	assert.NoError(t, err)
	assert.NoError(t, conn.(*net.TCPConn).CloseWrite())

	var resp enclaveapi.QueryResponse
	assert.NoError(t, json.NewDecoder(conn).Decode(&resp))
	check.True(t, resp.Success)
	check.Equal(t, `{"GetWinner":{"winner":null}}`, string(resp.Response))
}

func TestGetRequiredEnvInt(t *testing.T) {
	const key = "AUCTION_TEST_ENV_INT"

	os.Unsetenv(key)
	_, err := getRequiredEnvInt(key)
	check.Error(t, err)

	v, err := getEnvInt(key, 7)
	assert.NoError(t, err)
	check.Equal(t, 7, v)

	t.Setenv(key, "12")
	v, err = getRequiredEnvInt(key)
	assert.NoError(t, err)
	check.Equal(t, 12, v)

	t.Setenv(key, "abc")
	_, err = getRequiredEnvInt(key)
	check.Error(t, err)

	t.Setenv(key, "0")
	_, err = getEnvInt(key, 3)
	check.Error(t, err)
}
