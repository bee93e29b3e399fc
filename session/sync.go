package session

import (
	"context"

	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"github.com/trustmesh/trustmesh-core/apierr"
	"github.com/trustmesh/trustmesh-core/block"
	"github.com/trustmesh/trustmesh-core/resourcekey"
	"github.com/trustmesh/trustmesh-core/stoppable"
)

// ApplyIncoming verifies and applies one block fetched from transport,
// dispatching on its nature to the matching verifier. Key-publish natures
// are not applied to any store; ApplyIncoming instead makes a best-effort
// attempt to resolve and cache the resource key, since the local device or
// user keys needed to open it may already be held.
//
// A device-revocation block that names this session's own device triggers
// the DeviceRevoked security event: the in-memory device private keys are
// zeroed and the session is marked unusable. The safe's sealed record in kv
// is not deleted.
func (s *Session) ApplyIncoming(blk *block.Block) error {
	payload, err := block.ParsePayload(blk.Nature, blk.Payload)
	if err != nil {
		jww.WARN.Printf("[trustengine] dropping unparseable block (nature %s): %v", blk.Nature, err)
		return err
	}

	s.laneMu.Lock()
	defer s.laneMu.Unlock()

	if s.closed {
		return apierr.New(apierr.InvalidSessionStatus, "session is closed")
	}

	switch blk.Nature {
	case block.NatureTrustchainCreation:
		p := payload.(*block.TrustchainCreationPayload)
		if err := s.Chain.ApplyCreation(blk, p); err != nil {
			if apierr.Is(err, apierr.Conflict) {
				return nil
			}
			jww.WARN.Printf("[trustengine] dropping invalid trustchain-creation block: %v", err)
			return err
		}
		return nil

	case block.NatureDeviceCreationV1, block.NatureDeviceCreationV2, block.NatureDeviceCreationV3:
		p := payload.(*block.DeviceCreationPayload)
		if err := s.IdentV.VerifyDeviceCreation(blk, p); err != nil {
			jww.WARN.Printf("[trustengine] dropping invalid device-creation block: %v", err)
			return err
		}
		return s.IdentV.ApplyDeviceCreation(blk, p)

	case block.NatureDeviceRevocationV1, block.NatureDeviceRevocationV2:
		p := payload.(*block.DeviceRevocationPayload)
		if err := s.IdentV.VerifyDeviceRevocation(blk, p); err != nil {
			jww.WARN.Printf("[trustengine] dropping invalid device-revocation block: %v", err)
			return err
		}
		if err := s.IdentV.ApplyDeviceRevocation(blk, p); err != nil {
			return err
		}
		if p.DeviceID == s.DeviceID {
			jww.ERROR.Printf("[trustengine] this device was revoked; zeroing device secrets")
			s.Safe.ZeroDeviceSecrets()
			s.closed = true
		}
		return nil

	case block.NatureUserGroupCreation:
		p := payload.(*block.UserGroupCreationPayload)
		if err := s.GroupV.VerifyCreation(blk, p); err != nil {
			jww.WARN.Printf("[trustengine] dropping invalid group-creation block: %v", err)
			return err
		}
		return s.GroupV.ApplyCreation(blk, p)

	case block.NatureUserGroupAddition:
		p := payload.(*block.UserGroupAdditionPayload)
		if err := s.GroupV.VerifyAddition(blk, p); err != nil {
			jww.WARN.Printf("[trustengine] dropping invalid group-addition block: %v", err)
			return err
		}
		return s.GroupV.ApplyAddition(blk, p)

	case block.NatureKeyPublishToDevice:
		p := payload.(*block.KeyPublishToDevicePayload)
		_, _ = s.Keys.Resolve(p.ResourceID, []resourcekey.KeyPublish{{ToDevice: p}})
		return nil

	case block.NatureKeyPublishToUser:
		p := payload.(*block.KeyPublishToUserOrGroupPayload)
		_, _ = s.Keys.Resolve(p.ResourceID, []resourcekey.KeyPublish{{ToUser: p}})
		return nil

	case block.NatureKeyPublishToUserGroup:
		p := payload.(*block.KeyPublishToUserOrGroupPayload)
		_, _ = s.Keys.Resolve(p.ResourceID, []resourcekey.KeyPublish{{ToGroup: p}})
		return nil

	case block.NatureKeyPublishToProvisionalUser:
		p := payload.(*block.KeyPublishToProvisionalUserPayload)
		_, _ = s.Keys.Resolve(p.ResourceID, []resourcekey.KeyPublish{{ToProvisional: p}})
		return nil

	default:
		return apierr.NewBlock(apierr.SubcodeInvalidNature, "unknown block nature")
	}
}

// syncRound fetches this device's history and applies whatever blocks
// come back. Group blocks arrive the same way: a group-creation or
// group-addition block names this device's user as author or recipient,
// so it surfaces in the device history without a separate per-group
// fetch.
func (s *Session) syncRound(ctx context.Context) error {
	blocks, err := s.Transport.GetUserHistoryByDeviceIDs(ctx, [][block.IDSize]byte{s.DeviceID})
	if err != nil {
		return apierr.Wrap(apierr.NetworkError, err, "failed to fetch device history")
	}

	for _, blk := range blocks {
		if err := s.ApplyIncoming(blk); err != nil {
			// Invalid or already-applied blocks are dropped and logged;
			// the round as a whole still succeeds.
			continue
		}
	}
	return nil
}

// RunSyncLoop polls the transport for new blocks until stop is closed,
// rate-limited the same way a batch-builder worker loop throttles itself,
// and tracks consecutive failures on health so callers can surface
// NetworkError-style backoff state instead of spinning. Intended to run
// in its own goroutine.
func (s *Session) RunSyncLoop(stop *stoppable.Single, health *Health, roundsPerSecond int) {
	if roundsPerSecond <= 0 {
		roundsPerSecond = 1
	}
	rl := ratelimit.New(roundsPerSecond, ratelimit.WithoutSlack)

	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return
		default:
		}

		if err := s.syncRound(context.Background()); err != nil {
			jww.WARN.Printf("[trustengine] sync round failed: %v", err)
			health.reportFailure()
		} else {
			health.reportSuccess()
		}

		rl.Take()
	}
}
