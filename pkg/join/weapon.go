package join

import (
	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
)

// resolveWeapon stores the name of the equipped item sitting in the primary
// slot of the answer's current class. When several items qualify the last
// one in document order wins.
func resolveWeapon(p *model.Profile, r *protocol.JoinResult) {
	slot := model.Class(r.CurrentClass).PrimarySlot()
	if slot == 0 {
		return
	}
	for _, it := range r.Items {
		if it.Equipped && it.Slot == slot {
			p.PrimaryWeapon = it.Name
		}
	}
}
