// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ferrors define a taxonomia de erros usada por todo o cliente de
// flood: Config, I/O, Protocol, Capacity e Decode. Cada pacote envolve seus
// próprios erros com fmt.Errorf("...: %w", err) na fronteira, mas compara
// contra estes sentinels com errors.Is quando a camada chamadora precisa
// decidir o que fazer (abortar, reconectar, logar e seguir).
package ferrors

import "errors"

// ErrConfig indica um erro de configuração: host inválido, coordenadas fora
// de faixa, imagem ausente. Sempre fatal na inicialização.
var ErrConfig = errors.New("pixelflut: config error")

// ErrIO indica uma falha de E/S: conexão recusada, socket fechado, pipe
// truncado. Dentro de um painter isso é absorvido por reconexão; em outros
// pontos propaga para o chamador.
var ErrIO = errors.New("pixelflut: io error")

// ErrProtocol indica que uma resposta do servidor não pôde ser interpretada
// (SIZE ou PX malformado). Erros de protocolo na detecção de features apenas
// desativam a feature correspondente.
var ErrProtocol = errors.New("pixelflut: protocol error")

// ErrCapacity indica que uma fila limitada estava cheia. No caminho de
// frames ao vivo isso é um drop silencioso; em mudanças de configuração a
// camada chamadora deve bloquear em vez de usar este erro.
var ErrCapacity = errors.New("pixelflut: capacity exceeded")

// ErrDecode indica que um frame de imagem não pôde ser decodificado. O
// frame correspondente é descartado e o pipeline continua.
var ErrDecode = errors.New("pixelflut: decode error")
