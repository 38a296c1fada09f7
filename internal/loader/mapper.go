package loader

import (
	"fmt"
	"strings"
)

// Architecture names.
const (
	ArchitectureLLaMA   = "llama"
	ArchitectureMistral = "mistral"
)

// Tensor names used by llama-family GGUF checkpoints.
const (
	TokenEmbedding = "token_embd.weight"
	OutputNorm     = "output_norm.weight"
	Output         = "output.weight"
)

// Per-block tensor parts, see BlockTensor.
const (
	AttnNorm   = "attn_norm"
	AttnQ      = "attn_q"
	AttnK      = "attn_k"
	AttnV      = "attn_v"
	AttnOutput = "attn_output"
	FFNNorm    = "ffn_norm"
	FFNGate    = "ffn_gate"
	FFNUp      = "ffn_up"
	FFNDown    = "ffn_down"
)

// BlockTensor returns the name of a per-block weight, e.g. "blk.3.attn_q.weight".
func BlockTensor(layer int, part string) string {
	return fmt.Sprintf("blk.%d.%s.weight", layer, part)
}

var hfLayerParts = map[string]string{
	"self_attn.q_proj":         AttnQ,
	"self_attn.k_proj":         AttnK,
	"self_attn.v_proj":         AttnV,
	"self_attn.o_proj":         AttnOutput,
	"mlp.gate_proj":            FFNGate,
	"mlp.up_proj":              FFNUp,
	"mlp.down_proj":            FFNDown,
	"input_layernorm":          AttnNorm,
	"post_attention_layernorm": FFNNorm,
}

// MapName converts a Hugging Face LLaMA/Mistral weight name to its GGUF name.
// Names that are already GGUF names, or that have no mapping, are returned as-is.
//
//   - model.embed_tokens.weight -> token_embd.weight
//   - model.layers.{i}.self_attn.q_proj.weight -> blk.{i}.attn_q.weight
//   - model.layers.{i}.mlp.gate_proj.weight -> blk.{i}.ffn_gate.weight
//   - model.norm.weight -> output_norm.weight
//   - lm_head.weight -> output.weight
func MapName(name string) string {
	switch name {
	case "model.embed_tokens.weight":
		return TokenEmbedding
	case "model.norm.weight":
		return OutputNorm
	case "lm_head.weight":
		return Output
	}

	rest, ok := strings.CutPrefix(name, "model.layers.")
	if !ok {
		return name
	}
	layer, rest, ok := strings.Cut(rest, ".")
	if !ok {
		return name
	}
	part, ok := strings.CutSuffix(rest, ".weight")
	if !ok {
		return name
	}
	if gguf, ok := hfLayerParts[part]; ok {
		return "blk." + layer + "." + gguf + ".weight"
	}
	return name
}
