package wire

import (
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/att"
	"github.com/user/wearlink-blue/wire/gatt"
)

// handleServerRequest answers one inbound ATT request against the
// attribute table. With no table installed everything fails with
// Attribute Not Found, which is what a GATT client sees from a server
// that cleared its services.
func (w *Wire) handleServerRequest(peerUUID string, c *Connection, pkt att.Packet) {
	db := w.database()

	switch p := pkt.(type) {
	case *att.ExchangeMTURequest:
		negotiated := int(p.ClientRxMTU)
		if negotiated > MaxMTU {
			negotiated = MaxMTU
		}
		if negotiated < DefaultMTU {
			negotiated = DefaultMTU
		}
		c.mtuMu.Lock()
		c.mtu = negotiated
		c.mtuMu.Unlock()
		w.respond(c, &att.ExchangeMTUResponse{ServerRxMTU: uint16(negotiated)})

	case *att.ReadByGroupTypeRequest:
		if db == nil || p.Type != gatt.TypePrimaryService {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrUnsupportedGroupType)
			return
		}
		entries := db.GroupsInRange(p.StartHandle, p.EndHandle)
		if len(entries) == 0 {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrAttributeNotFound)
			return
		}
		w.respond(c, &att.ReadByGroupTypeResponse{Entries: entries})

	case *att.ReadByTypeRequest:
		if db == nil || p.Type != gatt.TypeCharacteristic {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrAttributeNotFound)
			return
		}
		entries := db.DeclarationsInRange(p.StartHandle, p.EndHandle)
		if len(entries) == 0 {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrAttributeNotFound)
			return
		}
		w.respond(c, &att.ReadByTypeResponse{Entries: entries})

	case *att.FindInformationRequest:
		if db == nil {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrAttributeNotFound)
			return
		}
		entries := db.InformationInRange(p.StartHandle, p.EndHandle)
		if len(entries) == 0 {
			w.respondError(c, pkt.Opcode(), p.StartHandle, att.ErrAttributeNotFound)
			return
		}
		w.respond(c, &att.FindInformationResponse{Entries: entries})

	case *att.ReadRequest:
		if db == nil {
			w.respondError(c, pkt.Opcode(), p.Handle, att.ErrInvalidHandle)
			return
		}
		value, err := db.Read(p.Handle)
		if err != nil {
			w.respondError(c, pkt.Opcode(), p.Handle, att.ErrInvalidHandle)
			return
		}
		w.respond(c, &att.ReadResponse{Value: value})

	case *att.WriteRequest:
		if w.applyWrite(peerUUID, c, p.Handle, p.Value, pkt.Opcode()) {
			w.respond(c, &att.WriteResponse{})
		}

	case *att.WriteCommand:
		// Unacknowledged; apply and stay silent either way.
		w.applyWrite(peerUUID, c, p.Handle, p.Value, 0)

	case *att.PrepareWriteRequest:
		if db == nil {
			w.respondError(c, pkt.Opcode(), p.Handle, att.ErrInvalidHandle)
			return
		}
		if _, ok := db.TypeOf(p.Handle); !ok {
			w.respondError(c, pkt.Opcode(), p.Handle, att.ErrInvalidHandle)
			return
		}
		if err := c.prepared.Add(p.Handle, p.Offset, p.Value); err != nil {
			w.respondError(c, pkt.Opcode(), p.Handle, att.ErrPrepareQueueFull)
			return
		}
		w.respond(c, &att.PrepareWriteResponse{Handle: p.Handle, Offset: p.Offset, Value: p.Value})

	case *att.ExecuteWriteRequest:
		if p.Flags == att.ExecuteWriteCancel {
			c.prepared.Cancel()
			w.respond(c, &att.ExecuteWriteResponse{})
			return
		}
		assembled, err := c.prepared.Commit()
		if err != nil {
			w.respondError(c, pkt.Opcode(), 0, att.ErrInvalidOffset)
			return
		}
		for handle, value := range assembled {
			if !w.applyWrite(peerUUID, c, handle, value, pkt.Opcode()) {
				return
			}
		}
		w.respond(c, &att.ExecuteWriteResponse{})

	default:
		logger.Debug(w.prefix, "unhandled request %s from %s", att.OpcodeNames[pkt.Opcode()], util.ShortHash(peerUUID))
	}
}

// applyWrite applies a client write: CCCD writes update the
// subscription table, characteristic value writes update the table and
// surface to the application. Returns false after sending an error
// response (requestOpcode != 0 only for acknowledged writes).
func (w *Wire) applyWrite(peerUUID string, c *Connection, handle uint16, value []byte, requestOpcode uint8) bool {
	db := w.database()
	if db == nil {
		if requestOpcode != 0 {
			w.respondError(c, requestOpcode, handle, att.ErrInvalidHandle)
		}
		return false
	}

	attrType, ok := db.TypeOf(handle)
	if !ok {
		if requestOpcode != 0 {
			w.respondError(c, requestOpcode, handle, att.ErrInvalidHandle)
		}
		return false
	}

	if attrType == gatt.TypeCCCD {
		cl, ok := db.CharForCCCDHandle(handle)
		if !ok {
			if requestOpcode != 0 {
				w.respondError(c, requestOpcode, handle, att.ErrInvalidHandle)
			}
			return false
		}
		if err := c.cccd.SetSubscription(cl.ValueHandle, value); err != nil {
			if requestOpcode != 0 {
				w.respondError(c, requestOpcode, handle, att.ErrInvalidAttributeValueLength)
			}
			return false
		}
		if err := db.Write(handle, value); err != nil {
			logger.Debug(w.prefix, "CCCD store: %v", err)
		}
		enabled := c.cccd.IsSubscribed(cl.ValueHandle)
		logger.Debug(w.prefix, "%s %s notifications on 0x%04X",
			util.ShortHash(peerUUID), map[bool]string{true: "enabled", false: "disabled"}[enabled], cl.UUID)
		if cb := w.getCallbacks().OnSubscription; cb != nil {
			cb(peerUUID, cl.UUID, enabled)
		}
		return true
	}

	if err := db.Write(handle, value); err != nil {
		if requestOpcode != 0 {
			w.respondError(c, requestOpcode, handle, att.ErrWriteNotPermitted)
		}
		return false
	}

	if charUUID, ok := db.CharForValueHandle(handle); ok {
		if cb := w.getCallbacks().OnWrite; cb != nil {
			cb(peerUUID, charUUID, value)
		}
	}
	return true
}

// Notify sends a handle-value notification for a characteristic to one
// peer. The return value is advisory; a send to an unsubscribed peer
// still goes out in this simulation (the chip's read loop accepts it),
// but is flagged in the log since a real stack would suppress it.
func (w *Wire) Notify(peerUUID string, charUUID uint16, value []byte) bool {
	db := w.database()
	if db == nil {
		return false
	}
	handle, ok := db.ValueHandle(charUUID)
	if !ok {
		logger.Warn(w.prefix, "notify for unknown characteristic 0x%04X", charUUID)
		return false
	}
	c := w.connection(peerUUID)
	if c == nil {
		return false
	}
	if !c.cccd.IsSubscribed(handle) {
		logger.Trace(w.prefix, "%s not subscribed to 0x%04X yet", util.ShortHash(peerUUID), charUUID)
	}
	if err := db.Write(handle, value); err != nil {
		return false
	}
	if err := w.sendATT(c, &att.HandleValueNotification{Handle: handle, Value: value}); err != nil {
		logger.Warn(w.prefix, "notify 0x%04X to %s failed: %v", charUUID, util.ShortHash(peerUUID), err)
		return false
	}
	return true
}

func (w *Wire) respond(c *Connection, pkt att.Packet) {
	if err := w.sendATT(c, pkt); err != nil {
		logger.Warn(w.prefix, "sending %s failed: %v", att.OpcodeNames[pkt.Opcode()], err)
	}
}

func (w *Wire) respondError(c *Connection, requestOpcode uint8, handle uint16, code uint8) {
	w.respond(c, &att.ErrorResponse{RequestOpcode: requestOpcode, Handle: handle, Code: code})
}
