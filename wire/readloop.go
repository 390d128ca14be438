package wire

import (
	"encoding/binary"
	"io"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/att"
	"github.com/user/wearlink-blue/wire/l2cap"
)

func (w *Wire) startReadLoop(peerUUID string, connection *Connection) {
	stopChan := make(chan struct{})
	w.stopMu.Lock()
	w.stopReading[peerUUID] = stopChan
	w.stopMu.Unlock()

	w.wg.Add(1)
	go w.readMessages(peerUUID, connection, stopChan)
}

// readMessages reads L2CAP frames off one link until it closes and
// routes them by channel.
func (w *Wire) readMessages(peerUUID string, connection *Connection, stopChan chan struct{}) {
	defer func() {
		w.wg.Done()
		w.health.RemoveConnection(string(connection.role), peerUUID)
		w.eventLog.Log("read_loop_ended", string(connection.role), peerUUID, "connection closed")

		w.mu.Lock()
		delete(w.connections, peerUUID)
		w.mu.Unlock()

		w.stopMu.Lock()
		delete(w.stopReading, peerUUID)
		w.stopMu.Unlock()

		connection.tracker.CancelPending()
		connection.conn.Close()

		if cb := w.getCallbacks().OnDisconnect; cb != nil {
			cb(peerUUID)
		}
	}()

	for {
		select {
		case <-stopChan:
			return
		default:
		}

		// Frame header first: 2-byte LE payload length.
		var l2capLen uint16
		if err := binary.Read(connection.conn, binary.LittleEndian, &l2capLen); err != nil {
			return
		}
		packetData := make([]byte, l2cap.HeaderLen+int(l2capLen))
		binary.LittleEndian.PutUint16(packetData[0:2], l2capLen)
		if _, err := io.ReadFull(connection.conn, packetData[2:]); err != nil {
			return
		}

		pkt, err := l2cap.Decode(packetData)
		if err != nil {
			logger.Warn(w.prefix, "bad L2CAP frame from %s: %v", util.ShortHash(peerUUID), err)
			continue
		}
		w.health.RecordMessageReceived(string(connection.role), peerUUID)

		switch pkt.ChannelID {
		case l2cap.ChannelATT:
			attPkt, err := att.DecodePacket(pkt.Payload)
			if err != nil {
				logger.Warn(w.prefix, "bad ATT PDU from %s: %v", util.ShortHash(peerUUID), err)
				continue
			}
			logger.Trace(w.prefix, "rx %s from %s", att.OpcodeNames[attPkt.Opcode()], util.ShortHash(peerUUID))
			w.handleATTPacket(peerUUID, connection, attPkt)

		case l2cap.ChannelSMP:
			w.handleSMPPacket(peerUUID, connection, pkt.Payload)

		default:
			logger.Warn(w.prefix, "unsupported L2CAP channel 0x%04X from %s", pkt.ChannelID, util.ShortHash(peerUUID))
		}
	}
}

// handleATTPacket routes one inbound ATT PDU: responses to the request
// tracker, requests and commands to the server side, notifications to
// the client callback.
func (w *Wire) handleATTPacket(peerUUID string, connection *Connection, pkt att.Packet) {
	switch p := pkt.(type) {
	case *att.HandleValueNotification:
		if cb := w.getCallbacks().OnNotification; cb != nil {
			cb(peerUUID, p.Handle, p.Value)
		}
		return

	case *att.ErrorResponse:
		if !connection.tracker.HandleResponse(pkt) {
			logger.Debug(w.prefix, "unmatched error response from %s: %v",
				util.ShortHash(peerUUID), att.NewError(p.Code, p.RequestOpcode, p.Handle))
		}
		return
	}

	op := pkt.Opcode()
	if att.IsRequest(op) || op == att.OpWriteCommand {
		w.handleServerRequest(peerUUID, connection, pkt)
		return
	}

	// A response: hand it to whoever is waiting.
	if !connection.tracker.HandleResponse(pkt) {
		logger.Debug(w.prefix, "unexpected %s from %s dropped", att.OpcodeNames[op], util.ShortHash(peerUUID))
	}
}
