// Package chathistory persists developer-assistant chats in BadgerDB.
//
// A chat is created with a name and gets the id "{name}_{unixMillis}".
// Messages can be appended one at a time or the whole history replaced with
// Save; Page reads a window of messages for incremental loading.
//
//	h, err := chathistory.Open(chathistory.DefaultConfig(".srasm/history"))
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	id, _ := h.Create(ctx, "debugging")
//	h.Append(ctx, id, chathistory.Message{Role: chathistory.RoleUser, Content: "why?"})
//
// Use InMemoryConfig for tests.
package chathistory
