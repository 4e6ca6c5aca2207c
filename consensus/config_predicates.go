package consensus

import (
	"net"
	"strconv"

	"github.com/juju/errors"
)

// IsVoter reports whether uuid is a voting member of cfg.
func IsVoter(uuid string, cfg ConfigurationRecord) bool {
	for _, p := range cfg.Peers {
		if p.UUID == uuid {
			return p.Role == RoleVoter
		}
	}
	return false
}

// IsMember reports whether uuid appears in cfg at all, regardless of role.
func IsMember(uuid string, cfg ConfigurationRecord) bool {
	for _, p := range cfg.Peers {
		if p.UUID == uuid {
			return true
		}
	}
	return false
}

// CountVoters returns the number of voting peers in cfg.
func CountVoters(cfg ConfigurationRecord) int {
	n := 0
	for _, p := range cfg.Peers {
		if p.Role == RoleVoter {
			n++
		}
	}
	return n
}

// MemberDetail is the summary returned by MemberDetailOf for a known peer.
type MemberDetail struct {
	HostPort string
	IsVoter  bool
	QuorumID string
}

// MemberDetailOf looks up uuid in cfg. The second return value is false if
// uuid is not a member of cfg.
func MemberDetailOf(uuid string, cfg ConfigurationRecord) (MemberDetail, bool) {
	for _, p := range cfg.Peers {
		if p.UUID == uuid {
			return MemberDetail{
				HostPort: p.HostPort(),
				IsVoter:  p.Role == RoleVoter,
				QuorumID: p.QuorumID,
			}, true
		}
	}
	return MemberDetail{}, false
}

// Verify checks cfg for structural well-formedness: no duplicate UUIDs, every
// voter has a parseable address, and at least one voter is present.
func Verify(cfg ConfigurationRecord) error {
	seen := make(map[string]struct{}, len(cfg.Peers))
	voters := 0
	for _, p := range cfg.Peers {
		if p.UUID == "" {
			return errors.NewNotValid(nil, "member with empty uuid")
		}
		if _, dup := seen[p.UUID]; dup {
			return errors.NewNotValid(nil, "duplicate peer uuid "+p.UUID)
		}
		seen[p.UUID] = struct{}{}

		if p.Role == RoleVoter {
			voters++
			if p.Host == "" {
				return errors.NewNotValid(nil, "voter "+p.UUID+" has no address")
			}
			if p.Port <= 0 || p.Port > 65535 {
				return errors.NewNotValid(nil, "voter "+p.UUID+" has invalid port "+strconv.Itoa(int(p.Port)))
			}
			if net.ParseIP(p.Host) == nil {
				// Accept bare hostnames too; only reject addresses that do
				// not split cleanly as host:port (e.g. an embedded port
				// separator). Other hostname characters are not checked.
				if _, _, err := net.SplitHostPort(p.Host + ":0"); err != nil {
					return errors.NewNotValid(err, "voter "+p.UUID+" has unparseable address "+p.Host)
				}
			}
		}
	}
	if voters == 0 {
		return errors.NewNotValid(nil, "configuration has zero voters")
	}
	return nil
}

// ComputeRole derives the active role of selfUUID given the observed leader
// and the active configuration.
func ComputeRole(selfUUID, leaderUUID string, cfg ConfigurationRecord) ActiveRole {
	detail, member := MemberDetailOf(selfUUID, cfg)
	switch {
	case selfUUID == leaderUUID && member && detail.IsVoter:
		return RoleLeader
	case selfUUID != leaderUUID && leaderUUID != "" && member && detail.IsVoter:
		return RoleFollower
	case member && !detail.IsVoter:
		return RoleLearner
	default:
		return RoleNonParticipant
	}
}
