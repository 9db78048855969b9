// Package sitemeter reads the depot's grid connection meter over Modbus TCP
// and keeps a short sample history. The live load floors the near-term site
// load forecast used by charge scheduling.
package sitemeter

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Register map of the site meter. Power values are milli-units in two
// registers, big endian.
const (
	regActivePower   = 30001
	regReactivePower = 30003
	regFrequency     = 30005
	regTotalEnergy   = 30006
)

// Client reads the site power meter.
type Client struct {
	client  modbus.Client
	handler *modbus.TCPClientHandler
}

// NewTCPClient connects to the meter at address (IP:PORT).
func NewTCPClient(address string, slaveID byte) (*Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to site meter: %w", err)
	}

	return &Client{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// Close closes the Modbus connection.
func (c *Client) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}

// Reading is one meter sample.
type Reading struct {
	Timestamp        time.Time
	ActivePowerKW    float64
	ReactivePowerKVA float64
	FrequencyHz      float64
	TotalEnergyKWh   float64
}

// ReadPower reads the meter's live values.
func (c *Client) ReadPower() (*Reading, error) {
	data, err := c.client.ReadInputRegisters(regActivePower, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to read site meter: %w", err)
	}

	return &Reading{
		Timestamp:        time.Now(),
		ActivePowerKW:    float64(bytesToS32(data[0:4])) / 1000.0,
		ReactivePowerKVA: float64(bytesToS32(data[4:8])) / 1000.0,
		FrequencyHz:      float64(bytesToU16(data[8:10])) / 100.0,
		TotalEnergyKWh:   float64(bytesToU32(data[10:14])) / 100.0,
	}, nil
}

func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToU32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

func bytesToS32(data []byte) int32 {
	return int32(binary.BigEndian.Uint32(data))
}
