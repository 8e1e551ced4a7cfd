package acl

import "github.com/patdav1503/securelog-msg-network/internal/model"

// DefaultTable returns the network's built-in policy.
//
// Order matters. The creator constraint is checked before any grant so
// that no caller, System included, can create a message with a
// non-System creator. Level3 read access precedes the Level3 write bans
// so READ is the only thing that kind can do to a message.
func DefaultTable() *Table {
	msg := []model.Operation{model.OpRead, model.OpUpdate, model.OpDelete}
	return &Table{Rules: []Rule{
		{
			Name:        "CreatorMustBeSystem",
			Description: "Messages must be created by a System participant",
			Operations:  []model.Operation{model.OpCreate},
			Resource:    model.AssetType,
			Condition:   Condition{Kind: CondCreatorNotSystem},
			Effect:      Deny,
			Reason:      model.ReasonInvalidCreator,
		},
		{
			Name:         "Level3ReadAll",
			Description:  "Level3 participants can read every message",
			Operations:   []model.Operation{model.OpRead},
			Resource:     model.AssetType,
			Participants: []string{model.KindLevel3},
			Effect:       Allow,
		},
		{
			Name:         "Level3NoWrites",
			Description:  "Level3 participants cannot change messages",
			Operations:   []model.Operation{model.OpCreate, model.OpUpdate, model.OpDelete},
			Resource:     model.AssetType,
			Participants: []string{model.KindLevel3},
			Effect:       Deny,
			Reason:       model.ReasonInsufficientAccess,
		},
		{
			Name:         "Level3NoSubmit",
			Description:  "Level3 participants cannot submit transactions",
			Operations:   []model.Operation{model.OpSubmit},
			Resource:     AnyResource,
			Participants: []string{model.KindLevel3},
			Effect:       Deny,
			Reason:       model.ReasonUnauthorizedSubmitter,
		},
		{
			Name:         "SystemCreatesMessages",
			Description:  "System participants can create messages",
			Operations:   []model.Operation{model.OpCreate},
			Resource:     model.AssetType,
			Participants: []string{model.KindSystem},
			Effect:       Allow,
		},
		{
			Name:        "OwnerManagesMessage",
			Description: "Owners can read, update and delete their messages",
			Operations:  msg,
			Resource:    model.AssetType,
			Condition:   Condition{Kind: CondOwner},
			Effect:      Allow,
		},
		{
			Name:         "SystemPostsMessages",
			Description:  "Only System participants can post error messages",
			Operations:   []model.Operation{model.OpSubmit},
			Resource:     model.TxPostErrorMessage,
			Participants: []string{model.KindSystem},
			Effect:       Allow,
		},
		{
			Name:        "OwnerUpdatesOwner",
			Description: "The current owner can reassign a message",
			Operations:  []model.Operation{model.OpSubmit},
			Resource:    model.TxUpdateErrorMessageOwner,
			Condition:   Condition{Kind: CondOwner},
			Effect:      Allow,
		},
		{
			Name:        "OwnerUpdatesStatus",
			Description: "The current owner can change a message's status",
			Operations:  []model.Operation{model.OpSubmit},
			Resource:    model.TxUpdateErrorMessageStatus,
			Condition:   Condition{Kind: CondOwner},
			Effect:      Allow,
		},
		{
			Name:        "OwnerUpdatesSeverity",
			Description: "The current owner can change a message's severity",
			Operations:  []model.Operation{model.OpSubmit},
			Resource:    model.TxUpdateErrorMessageSeverity,
			Condition:   Condition{Kind: CondOwner},
			Effect:      Allow,
		},
		{
			Name:        "ParticipantReadsSelf",
			Description: "Participants can read their own record",
			Operations:  []model.Operation{model.OpRead},
			Resource:    AnyResource,
			Condition:   Condition{Kind: CondSelf},
			Effect:      Allow,
		},
	}}
}
