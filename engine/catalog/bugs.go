package catalog

var bugs = []BugRecord{
	{
		ID:          "b1",
		Title:       "Level load hang in multiplayer",
		Description: "Client hangs when loading a level in multiplayer mode.",
	},
	{
		ID:          "b2",
		Title:       "Character falls through the floor",
		Description: "After respawning near the bridge on the harbor map the character can fall through the floor geometry and die instantly.",
	},
	{
		ID:          "b3",
		Title:       "Save file corruption on exit",
		Description: "Quitting the game while the autosave indicator is visible can corrupt the active save slot; the slot then fails to load.",
	},
	{
		ID:          "b4",
		Title:       "Audio desync after alt-tab",
		Description: "Switching away from the game window and back causes cutscene audio to drift behind the video by several seconds.",
	},
	{
		ID:          "b5",
		Title:       "Inventory items duplicated on trade",
		Description: "Cancelling a player trade at the exact moment it is confirmed can leave the traded item in both inventories.",
	},
	{
		ID:          "b6",
		Title:       "Crash when changing resolution",
		Description: "The game crashes to desktop when switching from fullscreen to a windowed resolution larger than the desktop.",
	},
	{
		ID:          "b7",
		Title:       "Quest marker points to wrong location",
		Description: "The marker for the lighthouse side quest points to the old harbor after the player reloads a save made mid-quest.",
	},
	{
		ID:          "b8",
		Title:       "Controller input lost after reconnect",
		Description: "Unplugging and reconnecting a gamepad during a match leaves the controller unresponsive until the game is restarted.",
	},
	{
		ID:          "b9",
		Title:       "Matchmaking stuck on searching",
		Description: "Ranked matchmaking stays on the searching screen indefinitely when the party leader changes region while in queue.",
	},
	{
		ID:          "b10",
		Title:       "Textures fail to load on low memory",
		Description: "On systems with less than 4 GB of video memory distant textures remain blurry and never stream in at full resolution.",
	},
	{
		ID:          "b11",
		Title:       "Achievement not unlocking",
		Description: "The achievement for finishing the campaign on hard does not unlock if the difficulty was changed at any point during the run.",
	},
	{
		ID:          "b12",
		Title:       "Chat messages shown twice",
		Description: "In lobbies with more than eight players every chat message is displayed twice for clients that joined after the host.",
	},
}
