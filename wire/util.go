package wire

import (
	"math/rand"
	"time"

	"github.com/user/wearlink-blue/wire/advertising"
)

// randomDelay returns a random duration between min and max.
func randomDelay(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// advEncode builds the standard advertising payload: flags, complete
// local name, 16-bit service UUID list.
func advEncode(localName string, serviceUUIDs []uint16) ([]byte, error) {
	structures := []advertising.ADStructure{
		advertising.NewFlagsAD(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
		advertising.NewCompleteLocalNameAD(localName),
	}
	if len(serviceUUIDs) > 0 {
		structures = append(structures, advertising.NewComplete16BitServiceUUIDsAD(serviceUUIDs...))
	}
	return advertising.Encode(structures...)
}
