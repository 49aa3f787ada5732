package encoder

// Concepts is the curated concept catalog. The slice order defines the
// meaning of every concept vector stored in the database and of the anchor
// matrix rows: index i of a concept vector is the weight of Concepts[i].
//
// Labels are lowercase. Append new concepts at the end only; inserting or
// reordering invalidates every persisted concept vector and requires a
// re-embed of the corpus.
var Concepts = []string{
	// creatures
	"dragon",
	"serpent",
	"hydra",
	"wyvern",
	"phoenix",
	"unicorn",
	"pegasus",
	"griffin",
	"kraken",
	"golem",
	"giant",
	"demon",
	"angel",
	"fairy",
	"elf",
	"goblin",
	"ogre",
	"vampire",
	"werewolf",
	"ghost",
	"zombie",
	"skeleton",
	"spirit",
	"slime",
	// people
	"warrior",
	"knight",
	"samurai",
	"ninja",
	"pirate",
	"archer",
	"wizard",
	"sorceress",
	"priest",
	"monk",
	"king",
	"queen",
	"child",
	"elder",
	"masked figure",
	// machines
	"robot",
	"android",
	"mech",
	"machine",
	"cannon",
	"gears",
	"circuitry",
	"spaceship",
	"vehicle",
	// animals
	"wolf",
	"tiger",
	"lion",
	"bear",
	"fox",
	"horse",
	"eagle",
	"owl",
	"raven",
	"bat",
	"snake",
	"spider",
	"scorpion",
	"insect",
	"butterfly",
	"shark",
	"whale",
	"octopus",
	"fish",
	"turtle",
	"frog",
	"crab",
	"dinosaur",
	// weapons and gear
	"sword",
	"shield",
	"axe",
	"spear",
	"bow",
	"dagger",
	"hammer",
	"staff",
	"wand",
	"armor",
	"helmet",
	"gauntlet",
	"crown",
	"mask",
	"cape",
	"robe",
	// body features
	"wings",
	"horns",
	"claws",
	"fangs",
	"tail",
	"tentacles",
	"multiple heads",
	"glowing eyes",
	// elements and effects
	"fire",
	"flame",
	"water",
	"ocean",
	"wave",
	"lightning",
	"thunder",
	"ice",
	"snow",
	"wind",
	"tornado",
	"storm",
	"earth",
	"sand",
	"lava",
	"poison",
	"smoke",
	"fog",
	"explosion",
	"beam",
	"aura",
	"magic circle",
	"rune",
	"portal",
	"energy sphere",
	// scenery
	"forest",
	"jungle",
	"desert",
	"mountain",
	"volcano",
	"cave",
	"swamp",
	"graveyard",
	"ruins",
	"castle",
	"temple",
	"shrine",
	"tower",
	"city",
	"battlefield",
	"throne",
	"laboratory",
	"outer space",
	"underwater",
	"sky",
	"clouds",
	// celestial and light
	"sun",
	"moon",
	"stars",
	"eclipse",
	"rainbow",
	"darkness",
	"light",
	"shadow",
	// objects
	"skull",
	"bones",
	"crystal",
	"gem",
	"gold",
	"treasure chest",
	"coin",
	"book",
	"scroll",
	"potion",
	"orb",
	"mirror",
	"clock",
	"key",
	"chain",
	"cage",
	"coffin",
	"egg",
	"flower",
	"tree",
	"vines",
	"mushroom",
	"feather",
	"flag",
	"dice",
	"card",
}

// ConceptDimensions is the dimension of every concept vector.
func ConceptDimensions() int {
	return len(Concepts)
}
