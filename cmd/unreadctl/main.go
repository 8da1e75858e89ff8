// Command unreadctl connects to the gateway and inspects the unread badge of a user.
//
//	unreadctl -token T -user U watch
//	unreadctl -token T -user U count <conversation_id>
//	unreadctl -token T -user U mark <conversation_id>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbeoliero/bazaar/internal/gateway"
	"github.com/mbeoliero/bazaar/internal/tracker"
	"github.com/mbeoliero/bazaar/pkg/constant"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "gateway address")
	token := flag.String("token", "", "login token")
	userId := flag.String("user", "", "user id the token belongs to")
	platformId := flag.Int("platform", constant.PlatformIdCLI, "platform id the token was issued for")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] watch | count <conversation_id> | mark <conversation_id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *token == "" || *userId == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := dial(*addr, *token, *userId, *platformId)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.close()

	switch cmd := flag.Arg(0); cmd {
	case "watch":
		err = watch(client)
	case "count", "mark":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = conversationCommand(client, cmd, flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// watch prints every badge snapshot pushed by the server until interrupted
func watch(client *wsClient) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		_ = client.close()
	}()

	for {
		resp, err := client.next()
		if err != nil {
			return nil
		}
		switch resp.ReqIdentifier {
		case gateway.WSPushUnread:
			var snap tracker.Snapshot
			if err := json.Unmarshal(resp.Data, &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			fmt.Println(formatSnapshot(snap))
		case gateway.WSKickOnlineMsg:
			return fmt.Errorf("kicked by another login")
		}
	}
}

func conversationCommand(client *wsClient, cmd, conversationId string) error {
	body := gateway.ConversationReq{ConversationId: conversationId}
	if cmd == "mark" {
		msgIncr, err := client.send(gateway.WSMarkRead, body)
		if err != nil {
			return err
		}
		resp, err := client.await(msgIncr)
		if err != nil {
			return err
		}
		var snap tracker.Snapshot
		if err := json.Unmarshal(resp.Data, &snap); err != nil {
			return err
		}
		fmt.Println(formatSnapshot(snap))
		return nil
	}

	msgIncr, err := client.send(gateway.WSCountConversation, body)
	if err != nil {
		return err
	}
	resp, err := client.await(msgIncr)
	if err != nil {
		return err
	}
	var count gateway.CountConversationResp
	if err := json.Unmarshal(resp.Data, &count); err != nil {
		return err
	}
	fmt.Printf("conversation=%s unread=%d optimistic=%v\n", count.ConversationId, count.Unread, count.Optimistic)
	return nil
}
