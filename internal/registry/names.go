package registry

import "math/rand/v2"

var adjectives = []string{
	"amber", "brave", "calm", "dapper", "eager", "fuzzy", "gentle", "hazy",
	"jolly", "keen", "lucky", "mellow", "nimble", "quiet", "rusty", "sunny",
}

var nouns = []string{
	"badger", "heron", "otter", "falcon", "lynx", "marmot", "newt", "owl",
	"panda", "quokka", "raven", "sparrow", "tapir", "walrus", "yak", "zebra",
}

// DisplayName returns a random adjective-noun pair such as "calm-otter".
// Names are cosmetic; two sessions may share one.
func DisplayName() string {
	return adjectives[rand.IntN(len(adjectives))] + "-" + nouns[rand.IntN(len(nouns))]
}
