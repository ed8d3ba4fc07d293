package reservation

import (
	"slices"

	"storefront/internal/domain"
)

// Channel identifies which selling surface a ledger serves
type Channel string

const (
	ChannelOnline  Channel = "online"
	ChannelCashier Channel = "cashier"
)

// CommandKind is the direction of a stock adjustment
type CommandKind string

const (
	CommandDeduct  CommandKind = "deduct"
	CommandRestore CommandKind = "restore"
)

// Command describes the durable stock write that follows an optimistic
// change to local state.
type Command struct {
	Kind    CommandKind
	Channel Channel
	Updates []domain.QuantityUpdate
}

// Empty reports whether the command has nothing to write
func (c Command) Empty() bool {
	return len(c.Updates) == 0
}

// ProductIDs returns the distinct products touched by the command
func (c Command) ProductIDs() []string {
	ids := make([]string, 0, len(c.Updates))
	for _, u := range c.Updates {
		if !slices.Contains(ids, u.ProductID) {
			ids = append(ids, u.ProductID)
		}
	}
	return ids
}

func deduct(productID string, amount int) Command {
	return Command{Kind: CommandDeduct, Updates: []domain.QuantityUpdate{{ProductID: productID, Amount: amount}}}
}

func restore(productID string, amount int) Command {
	return Command{Kind: CommandRestore, Updates: []domain.QuantityUpdate{{ProductID: productID, Amount: amount}}}
}
