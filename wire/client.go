package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/att"
	"github.com/user/wearlink-blue/wire/gatt"
)

// GATT client operations: the side of the link that discovers the
// remote table, subscribes, reads, and writes. The request tracker
// enforces ATT's single-outstanding-request rule; every helper blocks
// until the response or the transaction timeout.

// request sends one ATT request and waits for its response.
func (w *Wire) request(peerUUID string, pkt att.Packet) (att.Packet, error) {
	c := w.connection(peerUUID)
	if c == nil {
		return nil, fmt.Errorf("not connected to %s", peerUUID)
	}
	ch, err := c.tracker.StartRequest(pkt.Opcode())
	if err != nil {
		return nil, err
	}
	if err := w.sendATT(c, pkt); err != nil {
		c.tracker.FailRequest(err)
		return nil, err
	}
	resp := <-ch
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Packet, nil
}

// ExchangeMTU negotiates the ATT MTU as the client.
func (w *Wire) ExchangeMTU(peerUUID string, clientRxMTU uint16) (int, error) {
	resp, err := w.request(peerUUID, &att.ExchangeMTURequest{ClientRxMTU: clientRxMTU})
	if err != nil {
		return 0, err
	}
	mtuResp, ok := resp.(*att.ExchangeMTUResponse)
	if !ok {
		return 0, fmt.Errorf("unexpected MTU response type")
	}
	negotiated := int(mtuResp.ServerRxMTU)
	if int(clientRxMTU) < negotiated {
		negotiated = int(clientRxMTU)
	}
	if c := w.connection(peerUUID); c != nil {
		c.mtuMu.Lock()
		c.mtu = negotiated
		c.mtuMu.Unlock()
	}
	logger.Debug(w.prefix, "MTU with %s negotiated to %d", util.ShortHash(peerUUID), negotiated)
	return negotiated, nil
}

// DiscoverServices walks the remote table: primary services, then each
// service's characteristics, then descriptors. The result lands in the
// link's discovery cache.
func (w *Wire) DiscoverServices(peerUUID string) (*gatt.DiscoveryCache, error) {
	c := w.connection(peerUUID)
	if c == nil {
		return nil, fmt.Errorf("not connected to %s", peerUUID)
	}
	cache := gatt.NewDiscoveryCache()

	// Primary services via Read By Group Type until Attribute Not Found.
	start := uint16(0x0001)
	for {
		resp, err := w.request(peerUUID, &att.ReadByGroupTypeRequest{
			StartHandle: start, EndHandle: 0xFFFF, Type: gatt.TypePrimaryService,
		})
		if err != nil {
			if att.IsATTError(err, att.ErrAttributeNotFound) {
				break
			}
			return nil, fmt.Errorf("service discovery: %w", err)
		}
		groups, ok := resp.(*att.ReadByGroupTypeResponse)
		if !ok || len(groups.Entries) == 0 {
			break
		}
		cache.AddServices(groups.Entries)
		last := groups.Entries[len(groups.Entries)-1].EndHandle
		if last == 0xFFFF {
			break
		}
		start = last + 1
	}

	// Characteristics per service.
	for _, svc := range cache.Services {
		chStart := svc.StartHandle
		for {
			resp, err := w.request(peerUUID, &att.ReadByTypeRequest{
				StartHandle: chStart, EndHandle: svc.EndHandle, Type: gatt.TypeCharacteristic,
			})
			if err != nil {
				if att.IsATTError(err, att.ErrAttributeNotFound) {
					break
				}
				return nil, fmt.Errorf("characteristic discovery: %w", err)
			}
			chars, ok := resp.(*att.ReadByTypeResponse)
			if !ok || len(chars.Entries) == 0 {
				break
			}
			cache.AddCharacteristics(chars.Entries)
			last := chars.Entries[len(chars.Entries)-1].Handle
			if last >= svc.EndHandle {
				break
			}
			chStart = last + 1
		}

		// Descriptors (CCCDs) in the service range.
		resp, err := w.request(peerUUID, &att.FindInformationRequest{
			StartHandle: svc.StartHandle, EndHandle: svc.EndHandle,
		})
		if err != nil {
			if att.IsATTError(err, att.ErrAttributeNotFound) {
				continue
			}
			return nil, fmt.Errorf("descriptor discovery: %w", err)
		}
		if info, ok := resp.(*att.FindInformationResponse); ok {
			cache.AddDescriptors(info.Entries)
		}
	}

	c.discovery = cache
	logger.Debug(w.prefix, "discovered %d service(s) on %s", len(cache.Services), util.ShortHash(peerUUID))
	return cache, nil
}

// Discovery returns the link's discovery cache.
func (w *Wire) Discovery(peerUUID string) *gatt.DiscoveryCache {
	c := w.connection(peerUUID)
	if c == nil {
		return nil
	}
	return c.discovery
}

// Subscribe writes the remote CCCD of a characteristic.
func (w *Wire) Subscribe(peerUUID string, charUUID uint16, enable bool) error {
	c := w.connection(peerUUID)
	if c == nil {
		return fmt.Errorf("not connected to %s", peerUUID)
	}
	ch := c.discovery.Characteristic(charUUID)
	if ch == nil {
		return fmt.Errorf("characteristic 0x%04X not discovered on %s", charUUID, peerUUID)
	}
	if ch.CCCDHandle == 0 {
		return fmt.Errorf("characteristic 0x%04X has no CCCD", charUUID)
	}
	value := make([]byte, 2)
	if enable {
		binary.LittleEndian.PutUint16(value, gatt.CCCDNotifyEnabled)
	}
	_, err := w.request(peerUUID, &att.WriteRequest{Handle: ch.CCCDHandle, Value: value})
	if err != nil {
		return fmt.Errorf("writing CCCD of 0x%04X: %w", charUUID, err)
	}
	return nil
}

// ReadCharacteristic reads a remote characteristic value.
func (w *Wire) ReadCharacteristic(peerUUID string, charUUID uint16) ([]byte, error) {
	c := w.connection(peerUUID)
	if c == nil {
		return nil, fmt.Errorf("not connected to %s", peerUUID)
	}
	ch := c.discovery.Characteristic(charUUID)
	if ch == nil {
		return nil, fmt.Errorf("characteristic 0x%04X not discovered on %s", charUUID, peerUUID)
	}
	resp, err := w.request(peerUUID, &att.ReadRequest{Handle: ch.ValueHandle})
	if err != nil {
		return nil, err
	}
	read, ok := resp.(*att.ReadResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected read response type")
	}
	return read.Value, nil
}

// WriteCharacteristic writes a remote characteristic value,
// acknowledged.
func (w *Wire) WriteCharacteristic(peerUUID string, charUUID uint16, value []byte) error {
	c := w.connection(peerUUID)
	if c == nil {
		return fmt.Errorf("not connected to %s", peerUUID)
	}
	ch := c.discovery.Characteristic(charUUID)
	if ch == nil {
		return fmt.Errorf("characteristic 0x%04X not discovered on %s", charUUID, peerUUID)
	}
	if len(value) > w.MTU(peerUUID)-3 {
		return w.longWrite(peerUUID, ch.ValueHandle, value)
	}
	_, err := w.request(peerUUID, &att.WriteRequest{Handle: ch.ValueHandle, Value: value})
	return err
}

// longWrite queues the value in MTU-sized fragments with Prepare Write
// and commits with Execute Write.
func (w *Wire) longWrite(peerUUID string, handle uint16, value []byte) error {
	// Prepare Write carries a 5-byte header before the fragment.
	chunk := w.MTU(peerUUID) - 5
	if chunk < 1 {
		return fmt.Errorf("mtu too small for long write")
	}
	for offset := 0; offset < len(value); offset += chunk {
		end := offset + chunk
		if end > len(value) {
			end = len(value)
		}
		resp, err := w.request(peerUUID, &att.PrepareWriteRequest{
			Handle: handle,
			Offset: uint16(offset),
			Value:  value[offset:end],
		})
		if err != nil {
			w.request(peerUUID, &att.ExecuteWriteRequest{Flags: att.ExecuteWriteCancel})
			return err
		}
		echo, ok := resp.(*att.PrepareWriteResponse)
		if !ok || echo.Offset != uint16(offset) {
			w.request(peerUUID, &att.ExecuteWriteRequest{Flags: att.ExecuteWriteCancel})
			return fmt.Errorf("prepare write echo mismatch at offset %d", offset)
		}
	}
	_, err := w.request(peerUUID, &att.ExecuteWriteRequest{Flags: att.ExecuteWriteCommit})
	return err
}
