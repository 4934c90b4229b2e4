package tokenizer

import (
	"strings"
)

// SampleCorpus is a short text about machine learning used to train a
// demonstration vocabulary
const SampleCorpus = `
artificial intelligence is transforming the world through machine learning algorithms
neural networks learn patterns from data to make predictions and decisions
transformers are powerful architectures for natural language processing tasks
attention mechanisms help models focus on relevant parts of input sequences
large language models can generate human-like text and answer questions
deep learning requires computational resources and large datasets for training
backpropagation optimizes neural network weights through gradient descent
embeddings convert words into dense vector representations for processing
`

// baseText holds common function words mixed into dynamic training
const baseText = `
the and is are was were will be been being have has had do does did
can could would should might must may shall will would
i you he she it we they me him her us them my your his her its our their
this that these those a an some any all each every
in on at by for with from to of about through during before after
what when where why how who which whose whom
`

// dynamicRepeats is how many times the user text is repeated so it
// dominates the base text during dynamic training
const dynamicRepeats = 3

// TrainSample trains a tokenizer on SampleCorpus
func TrainSample(vocabSize int) *Tokenizer {
	return Train(SampleCorpus, vocabSize)
}

// TrainDynamic trains a tokenizer that adapts to userText: the base text
// of common words is combined with the user text repeated several times
func TrainDynamic(userText string, vocabSize int) *Tokenizer {
	parts := make([]string, 0, dynamicRepeats+1)
	parts = append(parts, baseText)
	for i := 0; i < dynamicRepeats; i++ {
		parts = append(parts, userText)
	}
	return Train(strings.Join(parts, " "), vocabSize)
}
