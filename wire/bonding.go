package wire

import (
	"fmt"
	"time"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/l2cap"
	"github.com/user/wearlink-blue/wire/smp"
)

// Bonding over the SMP channel. The initiator drives:
//
//	PairingRequest -> PairingResponse -> PairingRandom -> PairingRandom
//
// after which both sides derive the LTK from the two randoms and store
// it. A bonded peer reconnecting skips all of this.

const pairingTimeout = 5 * time.Second

// IsBonded reports whether a stored bond with the peer exists.
func (w *Wire) IsBonded(peerUUID string) bool {
	return w.bonds.IsBonded(peerUUID)
}

// InitiatePairing runs the initiator side of pairing. Returns
// immediately when already bonded.
func (w *Wire) InitiatePairing(peerUUID string) error {
	if w.bonds.IsBonded(peerUUID) {
		logger.Debug(w.prefix, "already bonded with %s", util.ShortHash(peerUUID))
		return nil
	}
	c := w.connection(peerUUID)
	if c == nil {
		return fmt.Errorf("not connected to %s", peerUUID)
	}

	c.pairMu.Lock()
	if c.pairDone != nil {
		c.pairMu.Unlock()
		return fmt.Errorf("pairing with %s already in progress", peerUUID)
	}
	random, err := smp.NewRandom()
	if err != nil {
		c.pairMu.Unlock()
		return err
	}
	done := make(chan error, 1)
	c.initiatorRandom = random
	c.pairDone = done
	c.pairMu.Unlock()

	msg := &smp.Message{Code: smp.CodePairingRequest, Payload: []byte{0x03}} // NoInputNoOutput
	if err := w.sendSMP(c, msg); err != nil {
		w.finishPairing(c, err)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-time.After(pairingTimeout):
		w.finishPairing(c, nil)
		return fmt.Errorf("pairing with %s timed out", peerUUID)
	}
}

// handleSMPPacket runs both responder and initiator continuations.
func (w *Wire) handleSMPPacket(peerUUID string, c *Connection, payload []byte) {
	msg, err := smp.Decode(payload)
	if err != nil {
		logger.Warn(w.prefix, "bad SMP PDU from %s: %v", util.ShortHash(peerUUID), err)
		return
	}

	switch msg.Code {
	case smp.CodePairingRequest:
		// Responder: acknowledge, wait for the initiator's random.
		if err := w.sendSMP(c, &smp.Message{Code: smp.CodePairingResponse, Payload: []byte{0x03}}); err != nil {
			logger.Warn(w.prefix, "pairing response to %s failed: %v", util.ShortHash(peerUUID), err)
		}

	case smp.CodePairingResponse:
		// Initiator: release our random.
		c.pairMu.Lock()
		random := c.initiatorRandom
		c.pairMu.Unlock()
		if random == nil {
			logger.Debug(w.prefix, "unsolicited pairing response from %s", util.ShortHash(peerUUID))
			return
		}
		if err := w.sendSMP(c, &smp.Message{Code: smp.CodePairingRandom, Payload: random}); err != nil {
			w.finishPairing(c, err)
		}

	case smp.CodePairingRandom:
		w.handlePairingRandom(peerUUID, c, msg.Payload)

	case smp.CodePairingFailed:
		reason := byte(smp.ReasonUnspecified)
		if len(msg.Payload) > 0 {
			reason = msg.Payload[0]
		}
		w.finishPairing(c, fmt.Errorf("pairing failed, reason 0x%02X", reason))

	default:
		logger.Debug(w.prefix, "unhandled SMP code 0x%02X from %s", msg.Code, util.ShortHash(peerUUID))
	}
}

func (w *Wire) handlePairingRandom(peerUUID string, c *Connection, theirRandom []byte) {
	c.pairMu.Lock()
	ourRandom := c.initiatorRandom
	c.pairMu.Unlock()

	if ourRandom != nil {
		// Initiator: we have both randoms now.
		ltk, err := smp.DeriveLTK(ourRandom, theirRandom, w.hardwareUUID, peerUUID)
		if err == nil {
			err = w.bonds.Store(peerUUID, ltk)
		}
		if err == nil {
			logger.Info(w.prefix, "bonded with %s", util.ShortHash(peerUUID))
			if cb := w.getCallbacks().OnBonded; cb != nil {
				cb(peerUUID)
			}
		}
		w.finishPairing(c, err)
		return
	}

	// Responder: reply with our random, then derive. The initiator's
	// random always goes first in the derivation.
	responderRandom, err := smp.NewRandom()
	if err != nil {
		logger.Warn(w.prefix, "pairing with %s: %v", util.ShortHash(peerUUID), err)
		return
	}
	if err := w.sendSMP(c, &smp.Message{Code: smp.CodePairingRandom, Payload: responderRandom}); err != nil {
		logger.Warn(w.prefix, "pairing random to %s failed: %v", util.ShortHash(peerUUID), err)
		return
	}
	ltk, err := smp.DeriveLTK(theirRandom, responderRandom, peerUUID, w.hardwareUUID)
	if err == nil {
		err = w.bonds.Store(peerUUID, ltk)
	}
	if err != nil {
		logger.Warn(w.prefix, "pairing with %s: %v", util.ShortHash(peerUUID), err)
		return
	}
	logger.Info(w.prefix, "bonded with %s", util.ShortHash(peerUUID))
	if cb := w.getCallbacks().OnBonded; cb != nil {
		cb(peerUUID)
	}
}

func (w *Wire) finishPairing(c *Connection, err error) {
	c.pairMu.Lock()
	done := c.pairDone
	c.pairDone = nil
	c.initiatorRandom = nil
	c.pairMu.Unlock()
	if done != nil {
		done <- err
	}
}

func (w *Wire) sendSMP(c *Connection, msg *smp.Message) error {
	return w.sendL2CAP(c, l2cap.NewSMPPacket(msg.Encode()))
}
