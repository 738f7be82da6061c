package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/google/uuid"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/auctioncontract/contracts"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

const (
	defaultVsockPort = 5000
	readTimeout      = 30 * time.Second
)

// EnclaveServer accepts host requests over vsock and routes them to the hosted contracts.
type EnclaveServer struct {
	port       uint32
	registry   *contracts.Registry
	keyManager *KeyManager

	// getAttester is swapped out in tests.
	getAttester func() (EnclaveAttester, error)
}

// NewEnclaveServer creates a server for the given contracts.
func NewEnclaveServer(port uint32, registry *contracts.Registry) *EnclaveServer {
	return &EnclaveServer{
		port:        port,
		registry:    registry,
		getAttester: getEnclaveAttester,
	}
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

func (s *EnclaveServer) Start() error {
	keyManager, err := NewKeyManager()
	if err != nil {
		return fmt.Errorf("failed to initialize key manager: %w", err)
	}
	s.keyManager = keyManager
	log.Printf("INFO: KeyManager initialized")

	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return fmt.Errorf("failed to get max workers config: %w", err)
	}

	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: TEE server listening on vsock port %d, hosting contracts %v", s.port, s.registry.IDs())

	semaphore := make(chan struct{}, maxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Reject immediately when the pool is full.
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.handleRequest(buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func errorResponse(format string, args ...any) enclaveapi.ErrorResponse {
	return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf(format, args...)}
}

// handleRequest decodes one request and returns the value to encode as the response.
func (s *EnclaveServer) handleRequest(data []byte) any {
	var baseReq struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return errorResponse("Failed to decode request: %v", err)
	}

	requestID := baseReq.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log.Printf("INFO: Received request type: %s (id %s)", baseReq.Type, requestID)

	switch baseReq.Type {
	case enclaveapi.TypePing:
		return map[string]any{
			"type":      "pong",
			"message":   "TEE server is healthy",
			"contracts": s.registry.IDs(),
			"timestamp": time.Now().Unix(),
		}

	case enclaveapi.TypeKeyRequest:
		attester, err := s.getAttester()
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return errorResponse("Failed to initialize TEE attester: %v", err)
		}
		keyResp, err := HandleKeyRequest(attester, s.keyManager)
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return errorResponse("Key request failed: %v", err)
		}
		return keyResp

	case enclaveapi.TypeCommand:
		var env enclaveapi.CommandEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ERROR: Failed to decode command: %v", err)
			return errorResponse("Failed to decode command: %v", err)
		}
		env.RequestID = requestID
		return ProcessCommand(s.registry, s.keyManager, env)

	case enclaveapi.TypeQuery:
		var env enclaveapi.QueryEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ERROR: Failed to decode query: %v", err)
			return errorResponse("Failed to decode query: %v", err)
		}
		env.RequestID = requestID
		return ProcessQuery(s.registry, env)

	case enclaveapi.TypeStateAttestation:
		var req enclaveapi.StateAttestationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("ERROR: Failed to decode state attestation request: %v", err)
			return errorResponse("Failed to decode state attestation request: %v", err)
		}
		req.RequestID = requestID
		attester, err := s.getAttester()
		if err != nil {
			log.Printf("ERROR: State attestation failed: %v", err)
			return errorResponse("Failed to initialize TEE attester: %v", err)
		}
		return ProcessStateAttestation(attester, s.registry, req)

	default:
		return errorResponse("Unknown request type: %s", baseReq.Type)
	}
}

// getRequiredEnvInt reads a mandatory integer setting from the environment.
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}
	if intValue <= 0 {
		return 0, fmt.Errorf("invalid value for %s: %d (must be positive)", key, intValue)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

// getEnvInt reads an optional integer setting, falling back to def when unset.
func getEnvInt(key string, def int) (int, error) {
	if os.Getenv(key) == "" {
		return def, nil
	}
	return getRequiredEnvInt(key)
}

func main() {
	port, err := getEnvInt("ENCLAVE_VSOCK_PORT", defaultVsockPort)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	registry, err := NewContractRegistry()
	if err != nil {
		log.Fatalf("ERROR: failed to register contracts: %v", err)
	}

	server := NewEnclaveServer(uint32(port), registry)
	log.Fatal(server.Start())
}
