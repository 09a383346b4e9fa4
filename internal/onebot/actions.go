package onebot

import (
	"context"
	"strconv"
)

// idParam renders an id for the wire. Gateways expect numeric ids
// where the id is numeric; anything else passes through as-is.
func idParam(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// OutSegment is one element of an outbound structured message.
type OutSegment map[string]any

// Text builds a text segment.
func Text(text string) OutSegment {
	return OutSegment{"type": "text", "data": map[string]any{"text": text}}
}

// At builds an at-mention segment.
func At(qq string) OutSegment {
	return OutSegment{"type": "at", "data": map[string]any{"qq": qq}}
}

// Reply builds a reply-anchor segment pointing at a delivered message.
func Reply(messageID string) OutSegment {
	return OutSegment{"type": "reply", "data": map[string]any{"id": messageID}}
}

// forwardNode builds one node of an aggregated forward message.
func forwardNode(name, uin, content string) OutSegment {
	return OutSegment{"type": "node", "data": map[string]any{
		"name":    name,
		"uin":     uin,
		"content": content,
	}}
}

// messageID pulls the delivery identifier out of a send response.
// Gateways disagree on the field name.
func messageID(resp *Response) string {
	if id := resp.DataField("message_id"); id != "" {
		return id
	}
	return resp.DataField("id")
}

// SendGroupMessage sends a plain text message to a group and returns
// its delivery identifier.
func (c *Caller) SendGroupMessage(ctx context.Context, groupID, text string) (string, error) {
	resp, err := c.Call(ctx, "send_group_msg", map[string]any{
		"group_id": idParam(groupID),
		"message":  text,
	})
	if err != nil {
		return "", err
	}
	return messageID(resp), nil
}

// SendGroupSegments sends a structured segment message to a group.
func (c *Caller) SendGroupSegments(ctx context.Context, groupID string, segments []OutSegment) (string, error) {
	resp, err := c.Call(ctx, "send_group_msg", map[string]any{
		"group_id": idParam(groupID),
		"message":  segments,
	})
	if err != nil {
		return "", err
	}
	return messageID(resp), nil
}

// SendGroupForward sends texts as one aggregated forward message to a
// group, each part attributed to senderID/senderName.
func (c *Caller) SendGroupForward(ctx context.Context, groupID string, texts []string, senderID, senderName string) (string, error) {
	nodes := make([]OutSegment, 0, len(texts))
	for _, t := range texts {
		nodes = append(nodes, forwardNode(senderName, senderID, t))
	}
	resp, err := c.Call(ctx, "send_group_forward_msg", map[string]any{
		"group_id": idParam(groupID),
		"messages": nodes,
	})
	if err != nil {
		return "", err
	}
	return messageID(resp), nil
}

// SendPrivateMessage sends a plain text message to a user.
func (c *Caller) SendPrivateMessage(ctx context.Context, userID, text string) (string, error) {
	resp, err := c.Call(ctx, "send_private_msg", map[string]any{
		"user_id": idParam(userID),
		"message": text,
	})
	if err != nil {
		return "", err
	}
	return messageID(resp), nil
}

// SendPrivateForward sends texts as one aggregated forward message to
// a user.
func (c *Caller) SendPrivateForward(ctx context.Context, userID string, texts []string, senderID, senderName string) (string, error) {
	nodes := make([]OutSegment, 0, len(texts))
	for _, t := range texts {
		nodes = append(nodes, forwardNode(senderName, senderID, t))
	}
	resp, err := c.Call(ctx, "send_private_forward_msg", map[string]any{
		"user_id":  idParam(userID),
		"messages": nodes,
	})
	if err != nil {
		return "", err
	}
	return messageID(resp), nil
}
