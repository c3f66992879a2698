package model

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"
)

const (
	// maxSeqLen bounds the tokenized description pair.
	maxSeqLen = 256

	// sepToken joins the two descriptions into one model input.
	sepToken = " [SEP] "
)

// ONNXScorer runs the downloaded match-scoring model via ONNX Runtime.
// The model takes the tokenized description pair plus the heuristic
// feature vector and outputs a single match logit.
type ONNXScorer struct {
	tokenizer     *tokenizers.Tokenizer
	session       *onnxruntime.AdvancedSession
	inputTensor   *onnxruntime.Tensor[int64]
	maskTensor    *onnxruntime.Tensor[int64]
	featureTensor *onnxruntime.Tensor[float32]
	outputTensor  *onnxruntime.Tensor[float32]
	modelPath     string
}

// NewONNXScorer loads the tokenizer and model and prepares the inference
// session. The ONNX Runtime shared library is located via the
// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable when set.
func NewONNXScorer(modelPath, tokenizerPath string) (*ONNXScorer, error) {
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		onnxruntime.SetSharedLibraryPath(libPath)
	}

	if !onnxruntime.IsInitialized() {
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("model: failed to initialize ONNX Runtime: %w", err)
		}
	}

	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("model: failed to load tokenizer: %w", err)
	}

	s := &ONNXScorer{tokenizer: tk, modelPath: modelPath}
	if err := s.initializeSession(); err != nil {
		if closeErr := tk.Close(); closeErr != nil {
			log.Printf("model: failed to close tokenizer during cleanup: %v", closeErr)
		}
		return nil, err
	}
	return s, nil
}

// Score runs one inference and returns the match confidence in [0, 1].
func (s *ONNXScorer) Score(ctx context.Context, input ScoreInput) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(input.Features) != FeatureDim {
		return 0, fmt.Errorf("model: expected %d features, got %d", FeatureDim, len(input.Features))
	}

	encoding := s.tokenizer.EncodeWithOptions(input.SourceText+sepToken+input.TargetText, true)
	tokenIDs := encoding.IDs
	if len(tokenIDs) > maxSeqLen {
		tokenIDs = tokenIDs[:maxSeqLen]
	}

	inputData := s.inputTensor.GetData()
	maskData := s.maskTensor.GetData()
	for i := range inputData {
		inputData[i] = 0
		maskData[i] = 0
	}
	for i, id := range tokenIDs {
		inputData[i] = int64(id)
		maskData[i] = 1
	}
	copy(s.featureTensor.GetData(), input.Features)

	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("model: inference failed: %w", err)
	}

	logit := s.outputTensor.GetData()[0]
	return sigmoid(logit), nil
}

// Close releases the session, tensors and tokenizer.
func (s *ONNXScorer) Close() error {
	var errs []error

	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
	}
	for _, t := range []interface{ Destroy() error }{
		s.inputTensor, s.maskTensor, s.featureTensor, s.outputTensor,
	} {
		if t != nil {
			if err := t.Destroy(); err != nil {
				errs = append(errs, fmt.Errorf("failed to destroy tensor: %w", err))
			}
		}
	}
	if s.tokenizer != nil {
		if err := s.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tokenizer: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("model: cleanup errors: %v", errs)
	}
	return nil
}

func (s *ONNXScorer) initializeSession() error {
	inputShape := onnxruntime.NewShape(1, maxSeqLen)
	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		return fmt.Errorf("model: failed to create input tensor: %w", err)
	}

	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		destroyAll(inputTensor)
		return fmt.Errorf("model: failed to create mask tensor: %w", err)
	}

	featureTensor, err := onnxruntime.NewTensor(
		onnxruntime.NewShape(1, FeatureDim), make([]float32, FeatureDim))
	if err != nil {
		destroyAll(inputTensor, maskTensor)
		return fmt.Errorf("model: failed to create feature tensor: %w", err)
	}

	outputTensor, err := onnxruntime.NewEmptyTensor[float32](onnxruntime.NewShape(1, 1))
	if err != nil {
		destroyAll(inputTensor, maskTensor, featureTensor)
		return fmt.Errorf("model: failed to create output tensor: %w", err)
	}

	session, err := onnxruntime.NewAdvancedSession(s.modelPath,
		[]string{"input_ids", "attention_mask", "features"},
		[]string{"match_logit"},
		[]onnxruntime.Value{inputTensor, maskTensor, featureTensor},
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		destroyAll(inputTensor, maskTensor, featureTensor, outputTensor)
		return fmt.Errorf("model: failed to create session: %w", err)
	}

	s.session = session
	s.inputTensor = inputTensor
	s.maskTensor = maskTensor
	s.featureTensor = featureTensor
	s.outputTensor = outputTensor
	return nil
}

func destroyAll(tensors ...interface{ Destroy() error }) {
	for _, t := range tensors {
		if err := t.Destroy(); err != nil {
			log.Printf("model: failed to destroy tensor during cleanup: %v", err)
		}
	}
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}
