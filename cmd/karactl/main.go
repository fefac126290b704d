// Package main provides a command-line client for testing the server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("karactl", "karabox client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	userID = app.Flag("user", "User ID issued by join").Envar("KARABOX_USER_ID").String()

	joinCmd   = app.Command("join", "Join the session")
	joinName  = joinCmd.Arg("name", "Display name").Required().String()
	joinToken = joinCmd.Flag("token", "Operator token").Envar("KARABOX_OPERATOR_TOKEN").String()

	playlistsCmd = app.Command("playlists", "List playlists")

	entriesCmd      = app.Command("entries", "List a playlist's entries")
	entriesPlaylist = entriesCmd.Arg("playlist-id", "Playlist ID").Required().String()

	addCmd      = app.Command("add", "Request a song")
	addPlaylist = addCmd.Arg("playlist-id", "Playlist ID").Required().String()
	addSongID   = addCmd.Arg("song-id", "Song ID").Required().String()
	addPos      = addCmd.Flag("position", "Target position (default: append)").Int()

	voteCmd   = app.Command("vote", "Upvote an entry")
	voteEntry = voteCmd.Arg("entry-id", "Entry ID").Required().String()

	unvoteCmd   = app.Command("unvote", "Withdraw an upvote")
	unvoteEntry = unvoteCmd.Arg("entry-id", "Entry ID").Required().String()

	quotaCmd      = app.Command("quota", "Show quota usage")
	quotaPlaylist = quotaCmd.Flag("playlist", "Playlist ID (default: public)").String()

	pollCmd = app.Command("poll", "Show the open poll")

	pollVoteCmd   = app.Command("poll-vote", "Vote in the open poll")
	pollVoteEntry = pollVoteCmd.Arg("entry-id", "Entry ID").Required().String()

	shuffleCmd      = app.Command("shuffle", "Shuffle a playlist (operator)")
	shufflePlaylist = shuffleCmd.Arg("playlist-id", "Playlist ID").Required().String()
	shufflePolicy   = shuffleCmd.Arg("policy", "normal, smart or balance").Required().String()

	removeCmd     = app.Command("remove", "Remove entries (operator)")
	removeEntries = removeCmd.Arg("entry-ids", "Entry IDs").Required().Strings()

	acceptCmd     = app.Command("accept", "Accept entries (operator)")
	acceptEntries = acceptCmd.Arg("entry-ids", "Entry IDs").Required().Strings()

	refuseCmd     = app.Command("refuse", "Refuse entries (operator)")
	refuseEntries = refuseCmd.Arg("entry-ids", "Entry IDs").Required().Strings()

	startedCmd   = app.Command("song-started", "Signal playback start (operator)")
	startedEntry = startedCmd.Arg("entry-id", "Entry ID").Required().String()

	endingCmd  = app.Command("song-ending", "Signal the song is about to end (operator)")
	stoppedCmd = app.Command("playback-stopped", "Signal playback stop (operator)")

	watchCmd = app.Command("watch", "Stream change notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case joinCmd.FullCommand():
		join()
	case playlistsCmd.FullCommand():
		get("/playlists")
	case entriesCmd.FullCommand():
		get("/playlists/" + *entriesPlaylist + "/entries")
	case addCmd.FullCommand():
		post("/playlists/"+*addPlaylist+"/entries", map[string]any{
			"song_id":  *addSongID,
			"position": *addPos,
		})
	case voteCmd.FullCommand():
		post("/entries/"+*voteEntry+"/vote", nil)
	case unvoteCmd.FullCommand():
		del("/entries/" + *unvoteEntry + "/vote")
	case quotaCmd.FullCommand():
		path := "/quota"
		if *quotaPlaylist != "" {
			path += "?playlist_id=" + *quotaPlaylist
		}
		get(path)
	case pollCmd.FullCommand():
		get("/poll")
	case pollVoteCmd.FullCommand():
		post("/poll/vote", map[string]string{"entry_id": *pollVoteEntry})
	case shuffleCmd.FullCommand():
		post("/playlists/"+*shufflePlaylist+"/shuffle", map[string]string{"policy": *shufflePolicy})
	case removeCmd.FullCommand():
		post("/entries/remove", map[string]any{"entry_ids": *removeEntries})
	case acceptCmd.FullCommand():
		post("/entries/accept", map[string]any{"entry_ids": *acceptEntries})
	case refuseCmd.FullCommand():
		post("/entries/refuse", map[string]any{"entry_ids": *refuseEntries})
	case startedCmd.FullCommand():
		post("/playback/started", map[string]string{"entry_id": *startedEntry})
	case endingCmd.FullCommand():
		post("/playback/about-to-end", nil)
	case stoppedCmd.FullCommand():
		post("/playback/stopped", nil)
	case watchCmd.FullCommand():
		watch()
	}
}

func join() {
	body, _ := json.Marshal(map[string]string{"name": *joinName, "token": *joinToken})
	resp, err := http.Post(*server+"/session/join", "application/json", bytes.NewReader(body))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		UserID   string `json:"user_id"`
		Operator bool   `json:"operator"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fatal(err)
	}
	fmt.Printf("Joined! Your user ID: %s\n", result.UserID)
	if result.Operator {
		fmt.Println("You have operator rights.")
	}
	fmt.Printf("Export it for the other commands:\n  export KARABOX_USER_ID=%s\n", result.UserID)
}

func get(path string)         { request(http.MethodGet, path, nil) }
func del(path string)         { request(http.MethodDelete, path, nil) }
func post(path string, v any) { request(http.MethodPost, path, v) }

func request(method, path string, v any) {
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			fatal(err)
		}
		body = bytes.NewReader(data)
	} else if method == http.MethodPost {
		body = strings.NewReader("{}")
	}

	req, err := http.NewRequest(method, *server+path, body)
	if err != nil {
		fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *userID != "" {
		req.Header.Set("X-User-Id", *userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal(err)
	}
	if resp.StatusCode >= 400 {
		fmt.Printf("Error (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(data)))
		os.Exit(1)
	}
	fmt.Println(prettyJSON(data))
}

func watch() {
	url := strings.Replace(*server, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	fmt.Println("Watching notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fatal(err)
		}
		fmt.Println(prettyJSON(data))
	}
}

func prettyJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

func fatal(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
